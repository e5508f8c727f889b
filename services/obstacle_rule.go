package services

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ObstacleEnv is the environment an obstacle rule is evaluated against
type ObstacleEnv struct {
	X        int
	Y        int
	Height   float64
	Terrain  int
	Obstacle bool
}

// ObstacleRule is a boolean expression applied to every cell during raster
// ingestion; cells it matches become obstacles. Example: `Height > 4500`.
type ObstacleRule struct {
	src     string
	program *vm.Program
}

// CompileObstacleRule compiles src. An empty source yields a nil rule.
func CompileObstacleRule(src string) (*ObstacleRule, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	prog, err := expr.Compile(src, expr.Env(ObstacleEnv{}), expr.AsBool())
	if err != nil {
		return nil, &GridError{Kind: KindValidation, Op: "initialize", Reason: "invalid obstacle rule", Err: err}
	}
	return &ObstacleRule{src: src, program: prog}, nil
}

// String returns the rule source
func (r *ObstacleRule) String() string { return r.src }

func (r *ObstacleRule) blocks(x, y int, c cell) (bool, error) {
	out, err := vm.Run(r.program, ObstacleEnv{
		X:        x,
		Y:        y,
		Height:   c.height,
		Terrain:  c.terrain,
		Obstacle: c.obstacle,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate obstacle rule %q: %w", r.src, err)
	}
	b, _ := out.(bool)
	return b, nil
}
