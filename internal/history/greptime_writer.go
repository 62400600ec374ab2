package history

import (
	"context"
	"log/slog"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// greptimeClient abstracts the ingester client for testing.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter ships history rows to GreptimeDB via the ingester client.
type GreptimeWriter struct {
	client greptimeClient
	db     string
	table  string
	log    *slog.Logger
}

// NewGreptimeWriter connects to the GreptimeDB endpoint.
func NewGreptimeWriter(endpoint, database, tableName string, log *slog.Logger) (*GreptimeWriter, error) {
	if tableName == "" {
		tableName = "rover_telemetry"
	}
	client, err := greptime.NewClient(greptime.NewConfig(endpoint))
	if err != nil {
		return nil, err
	}
	return &GreptimeWriter{client: client, db: database, table: tableName, log: log}, nil
}

// Write inserts a single row.
func (w *GreptimeWriter) Write(row Row) error {
	return w.WriteBatch([]Row{row})
}

// WriteBatch inserts multiple rows.
func (w *GreptimeWriter) WriteBatch(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	ctx := ingesterContext.New(context.Background())

	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("session_id", types.STRING)
	tbl.AddTagColumn("address", types.STRING)
	tbl.AddFieldColumn("battery", types.FLOAT64)
	tbl.AddFieldColumn("rssi", types.FLOAT64)
	tbl.AddFieldColumn("command", types.STRING)
	tbl.AddFieldColumn("distance", types.FLOAT64)
	tbl.AddFieldColumn("mode", types.STRING)
	tbl.AddFieldColumn("band", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP)

	for _, r := range rows {
		tbl.AddRow(r.SessionID, r.Address, r.Battery, float64(r.RSSI), r.Command,
			r.distanceOrSentinel(), r.Mode, r.Band, r.Timestamp)
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Warn("greptime write failed", "db", w.db, "table", w.table, "rows", len(rows), "error", err)
		return err
	}
	return nil
}
