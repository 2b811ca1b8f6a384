// Package funcs registers the built-in "default" function set: math
// functions (logged, registration required), open utilities (noregcheck)
// and high-frequency simulation functions (nolog).
package funcs

import (
	"sync"
	"time"

	"github.com/NeveIsa/LEAP2/internal/registry"
)

// Default is the function set bound by the default experiment.
var Default = registry.NewSet()

func init() {
	Default.Register("square", Square, registry.WithDoc("Return x squared."))
	Default.Register("cubic", Cubic, registry.WithDoc("Return x cubed."))
	Default.Register("add", Add, registry.WithDoc("Return a + b."))
	Default.Register("rosenbrock", Rosenbrock,
		registry.WithDoc("Evaluate the Rosenbrock function: (1-x)^2 + 100*(y-x^2)^2."))
	Default.Register("bisect", Bisect,
		registry.WithDoc("Return the midpoint of an interval, one step of the bisection method."))
	Default.Register("gradient_step", GradientStep,
		registry.WithDoc("One gradient descent step: x - lr * grad."))

	Default.Register("echo", Echo,
		registry.WithDoc("Return input unchanged. Open to all, still logged."),
		registry.NoRegCheck())
	Default.Register("ping", Ping,
		registry.WithDoc("Health check callable by anyone. Still logged."),
		registry.NoRegCheck())
	Default.Register("server_time", ServerTime,
		registry.WithDoc("Return current server UTC time. Open to all."),
		registry.NoRegCheck())

	Default.Register("step", Step,
		registry.WithDoc("Move the agent by (dx, dy). Called at high frequency by UI, not logged."),
		registry.NoLog())
	Default.Register("get_position", GetPosition,
		registry.WithDoc("Return current agent position. Polled frequently, not logged."),
		registry.NoLog())
	Default.Register("reset", Reset,
		registry.WithDoc("Reset agent to origin. Infrequent, logged."))

	registry.RegisterSet("default", Default)
}

func Square(x float64) float64 { return x * x }

func Cubic(x float64) float64 { return x * x * x }

func Add(a, b float64) float64 { return a + b }

func Rosenbrock(x, y float64) float64 {
	return (1-x)*(1-x) + 100*(y-x*x)*(y-x*x)
}

func Bisect(fLeft, fRight float64) float64 {
	return (fLeft + fRight) / 2.0
}

func GradientStep(x, grad, lr float64) float64 {
	return x - lr*grad
}

func Echo(x any) any { return x }

func Ping() string { return "pong" }

func ServerTime() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Position is one agent's simulation state.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

var (
	simMu    sync.Mutex
	simState = make(map[string]*Position)
)

// Step moves the agent identified by studentID by (dx, dy).
func Step(studentID string, dx, dy float64) Position {
	simMu.Lock()
	defer simMu.Unlock()
	p, ok := simState[studentID]
	if !ok {
		p = &Position{}
		simState[studentID] = p
	}
	p.X += dx
	p.Y += dy
	return *p
}

// GetPosition returns the agent's current position.
func GetPosition(studentID string) Position {
	simMu.Lock()
	defer simMu.Unlock()
	if p, ok := simState[studentID]; ok {
		return *p
	}
	return Position{}
}

// Reset moves the agent back to the origin.
func Reset(studentID string) Position {
	simMu.Lock()
	defer simMu.Unlock()
	simState[studentID] = &Position{}
	return Position{}
}
