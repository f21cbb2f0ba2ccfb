// Package tasks turns configured keeper tasks into scheduler tasks.
package tasks

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/moebius-network/moebius/common/callenc"
	"github.com/moebius-network/moebius/common/config"
	"github.com/moebius-network/moebius/common/idcodec"
	"github.com/moebius-network/moebius/common/ledger"
	"github.com/moebius-network/moebius/common/targets"
	"github.com/moebius-network/moebius/keeper/internal/scheduler"
)

// Deployment locates the contracts tasks run against.
type Deployment struct {
	Relay common.Address
	// Targets maps an ABI name to the address used when a task leaves its
	// target empty.
	Targets map[string]common.Address
}

// Build constructs the scheduler task for cfg.
func Build(cfg config.TaskConfig, d Deployment) (scheduler.Task, error) {
	schema, err := callenc.Lookup(cfg.ABI)
	if err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: %w", cfg.Name, err)
	}
	method, err := schema.Method(cfg.EntryPoint)
	if err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: %w", cfg.Name, err)
	}

	target, err := resolveTarget(cfg, d)
	if err != nil {
		return scheduler.Task{}, err
	}

	args, err := buildArgs(cfg, schema, len(method.Inputs))
	if err != nil {
		return scheduler.Task{}, fmt.Errorf("task %s: %w", cfg.Name, err)
	}

	gasPrice, err := cfg.GasPriceWei()
	if err != nil {
		return scheduler.Task{}, err
	}

	task := scheduler.Task{
		Name:       cfg.Name,
		Relay:      d.Relay,
		Target:     target,
		Schema:     schema,
		EntryPoint: cfg.EntryPoint,
		Args:       args,
		Period:     cfg.Period,
		RetryDelay: cfg.RetryDelay,
		Policy:     ledger.InclusionPolicy{Timeout: cfg.InclusionTimeout},
		GasLimit:   cfg.GasLimit,
		GasPrice:   gasPrice,
	}

	if cfg.Confirm.Enabled {
		confirm, err := buildConfirm(cfg)
		if err != nil {
			return scheduler.Task{}, fmt.Errorf("task %s: %w", cfg.Name, err)
		}
		task.Confirm = confirm
	}
	return task, nil
}

// BuildAll constructs every configured task.
func BuildAll(cfgs []config.TaskConfig, d Deployment) ([]scheduler.Task, error) {
	out := make([]scheduler.Task, 0, len(cfgs))
	for _, cfg := range cfgs {
		task, err := Build(cfg, d)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

func resolveTarget(cfg config.TaskConfig, d Deployment) (common.Address, error) {
	if cfg.Target != "" {
		if !common.IsHexAddress(cfg.Target) {
			return common.Address{}, fmt.Errorf("task %s: target %q is not an address", cfg.Name, cfg.Target)
		}
		return common.HexToAddress(cfg.Target), nil
	}
	if addr, ok := d.Targets[cfg.ABI]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("task %s: no target configured and no %s deployment known", cfg.Name, cfg.ABI)
}

func buildArgs(cfg config.TaskConfig, schema *callenc.Schema, inputs int) (scheduler.ArgumentBuilder, error) {
	if cfg.ArgsMode == config.ArgsRandom {
		return NewRandomArgs(schema, cfg.EntryPoint, cfg.Seed)
	}

	if len(cfg.Args) != inputs {
		return nil, fmt.Errorf("%w: %s takes %d arguments, %d configured", callenc.ErrArgumentTypeMismatch, cfg.EntryPoint, inputs, len(cfg.Args))
	}
	args := make(StaticArgs, len(cfg.Args))
	for i, a := range cfg.Args {
		args[i] = a
	}
	// Encode once so bad literals fail at startup rather than every cycle.
	if _, err := schema.Encode(cfg.EntryPoint, args...); err != nil {
		return nil, err
	}
	return args, nil
}

func buildConfirm(cfg config.TaskConfig) (*scheduler.ConfirmationPolicy, error) {
	key, err := idcodec.ParseKey(cfg.Confirm.CorrelationKey)
	if err != nil {
		return nil, fmt.Errorf("confirm.correlation_key: %w", err)
	}

	var schema *callenc.Tuple
	if len(cfg.Confirm.ResultTypes) > 0 {
		schema, err = callenc.NewTuple(cfg.Confirm.ResultTypes...)
	} else {
		schema, err = targets.ResultSchema(cfg.ABI)
	}
	if err != nil {
		return nil, err
	}

	return &scheduler.ConfirmationPolicy{
		Key:          key,
		Schema:       schema,
		PollInterval: cfg.Confirm.PollInterval,
		Timeout:      cfg.Confirm.Timeout,
	}, nil
}
