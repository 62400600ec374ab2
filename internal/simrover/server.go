// Development rover exposing the control/telemetry HTTP API
package simrover

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"roverctl/internal/rover"
)

const (
	fullBattery = 8.4
	// drain per second of uptime, volts
	drainRate = 0.0005
)

// Rover is a simulated rover backing the HTTP API. It tracks the last
// pushed mode, command, and speed and synthesizes telemetry.
type Rover struct {
	mu       sync.Mutex
	mode     rover.Mode
	command  rover.Direction
	speed    int
	distance float64
	rng      *rand.Rand
	started  time.Time
}

// New creates a rover in manual mode with a full battery.
func New() *Rover {
	return &Rover{
		mode:     rover.ModeManual,
		command:  rover.DirStop,
		speed:    128,
		distance: 80,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		started:  time.Now(),
	}
}

// Routes builds the gin engine serving the rover API.
func (r *Rover) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/mode", r.handleMode)
	e.GET("/action", r.handleAction)
	e.GET("/speed", r.handleSpeed)
	e.GET("/status", r.handleStatus)
	return e
}

func (r *Rover) handleMode(c *gin.Context) {
	m := rover.Mode(c.Query("mode"))
	if !m.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode"})
		return
	}
	r.mu.Lock()
	r.mode = m
	r.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"mode": m})
}

func (r *Rover) handleAction(c *gin.Context) {
	d := rover.Direction(c.Query("go"))
	if !d.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown direction"})
		return
	}
	r.mu.Lock()
	r.command = d
	r.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"command": d})
}

func (r *Rover) handleSpeed(c *gin.Context) {
	val, err := strconv.Atoi(c.Query("val"))
	if err != nil || val < 0 || val > 255 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "val must be 0-255"})
		return
	}
	r.mu.Lock()
	r.speed = val
	r.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"speed": val})
}

func (r *Rover) handleStatus(c *gin.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	battery := fullBattery - drainRate*time.Since(r.started).Seconds()
	rssi := -55 - r.rng.Intn(20)

	// Random-walk the rangefinder; drop the reading now and then like real
	// ultrasonic sensors do.
	r.distance += float64(r.rng.Intn(21) - 10)
	if r.distance < 2 {
		r.distance = 2
	}
	if r.distance > 300 {
		r.distance = 300
	}
	var distance *float64
	if r.rng.Intn(10) != 0 {
		d := r.distance
		distance = &d
	}

	c.JSON(http.StatusOK, gin.H{
		"battery":  battery,
		"rssi":     rssi,
		"command":  r.command,
		"distance": distance,
		"mode":     r.mode,
	})
}
