package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/lifecycle"
	"github.com/danmuck/fleetctl/internal/registry"
)

const (
	actionCreate  = "create"
	actionVerify  = "verify"
	actionSwitch  = "switch"
	actionDestroy = "destroy"
)

// ErrInvalidPlan wraps every plan validation failure.
var ErrInvalidPlan = errors.New("fleetctl: invalid plan")

// plan is a scripted sequence of lifecycle operations against the simulated fleet.
type plan struct {
	Roots []string   `toml:"roots"`
	Steps []planStep `toml:"steps"`
}

type planStep struct {
	Action  string `toml:"action"`
	Name    string `toml:"name"`
	Parent  string `toml:"parent"`
	Profile string `toml:"profile"`
}

func loadPlan(path string) (plan, error) {
	var p plan
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return plan{}, fmt.Errorf("load plan: %w", err)
	}
	if err := p.validate(); err != nil {
		return plan{}, err
	}
	return p, nil
}

func (p plan) validate() error {
	if len(p.Roots) == 0 {
		return fmt.Errorf("%w: at least one root is required", ErrInvalidPlan)
	}
	for i, s := range p.Steps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("%w: step %d: name is required", ErrInvalidPlan, i+1)
		}
		switch strings.ToLower(strings.TrimSpace(s.Action)) {
		case actionCreate, actionVerify:
			if strings.TrimSpace(s.Parent) == "" || strings.TrimSpace(s.Profile) == "" {
				return fmt.Errorf("%w: step %d: %s needs parent and profile", ErrInvalidPlan, i+1, s.Action)
			}
		case actionSwitch:
			if strings.TrimSpace(s.Profile) == "" {
				return fmt.Errorf("%w: step %d: switch needs profile", ErrInvalidPlan, i+1)
			}
		case actionDestroy:
		default:
			return fmt.Errorf("%w: step %d: unknown action %q", ErrInvalidPlan, i+1, s.Action)
		}
	}
	return nil
}

// runPlan registers the plan's roots and executes its steps in order, stopping
// at the first failing step.
func runPlan(ctx context.Context, reg *registry.Memory, orch *lifecycle.Orchestrator, p plan, out io.Writer) error {
	for _, root := range p.Roots {
		c, err := reg.AddRoot(ctx, root)
		if err != nil {
			return fmt.Errorf("add root %s: %w", root, err)
		}
		fmt.Fprintf(out, "root     %-16s %s\n", c.ID(), c.Endpoint())
	}
	for i, s := range p.Steps {
		if err := runStep(ctx, orch, s, out); err != nil {
			return fmt.Errorf("step %d (%s %s): %w", i+1, s.Action, s.Name, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, orch *lifecycle.Orchestrator, s planStep, out io.Writer) error {
	switch strings.ToLower(strings.TrimSpace(s.Action)) {
	case actionCreate, actionVerify:
		create := orch.CreateChild
		if strings.EqualFold(strings.TrimSpace(s.Action), actionVerify) {
			create = orch.CreateAndVerifyChild
		}
		c, err := create(ctx, s.Name, s.Parent, s.Profile)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created  %-16s %s profiles=%s\n", c.ID(), c.Endpoint(),
			strings.Join(fleet.ProfileNames(c.Profiles()), ","))
	case actionSwitch:
		res, err := orch.SetProfile(ctx, s.Name, s.Profile)
		if err != nil {
			return err
		}
		state := "unchanged"
		if res.Changed {
			state = "switched"
		}
		fmt.Fprintf(out, "%-8s %-16s %s -> %s\n", state, res.ContainerID,
			strings.Join(res.Previous, ","), strings.Join(res.Desired, ","))
	case actionDestroy:
		orch.Destroy(ctx, s.Name)
		fmt.Fprintf(out, "destroy  %s\n", strings.TrimSpace(s.Name))
	}
	return nil
}
