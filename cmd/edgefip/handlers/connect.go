package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/edgefip/internal/floatingip"
)

// ExitTempFail is the exit code of a command that should be retried later
// (EX_TEMPFAIL from sysexits.h).
const ExitTempFail = 75

// BusyError is returned when the gateway was busy and the operation must be
// run again after RetryAfter.
type BusyError struct {
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("gateway is busy, retry after %s", e.RetryAfter)
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var busy *BusyError
	if errors.As(err, &busy) {
		return ExitTempFail
	}
	return 1
}

// InterfaceRequest identifies the interface an operation acts on.
type InterfaceRequest struct {
	// ID keys the interface's runtime state in the store.
	ID string
	// Workload is the workload the interface belongs to.
	Workload string
}

type operation func(*floatingip.Controller, context.Context, floatingip.InterfaceContext) (floatingip.Result, error)

// Connect handles the connect command. The assigned public address is written
// to out.
func Connect(ctx context.Context, opts Options, req InterfaceRequest, out io.Writer) error {
	rt, err := run(ctx, opts, req, (*floatingip.Controller).Connect)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rt.PublicIP)
	return nil
}

// Disconnect handles the disconnect command.
func Disconnect(ctx context.Context, opts Options, req InterfaceRequest, out io.Writer) error {
	rt, err := run(ctx, opts, req, (*floatingip.Controller).Disconnect)
	if err != nil {
		return err
	}
	if rt.Associated() {
		fmt.Fprintf(out, "%s still associated\n", rt.PublicIP)
		return nil
	}
	fmt.Fprintf(out, "interface %s disconnected\n", req.ID)
	return nil
}

// run loads the interface's runtime state, runs op and saves the state again,
// also when op failed part way.
func run(ctx context.Context, opts Options, req InterfaceRequest, op operation) (*floatingip.RuntimeState, error) {
	e, err := setup(ctx, opts, true)
	if err != nil {
		return nil, err
	}
	logger := logr.FromContextOrDiscard(ctx).WithValues("interface", req.ID)

	rt, err := e.store.Load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	ic := floatingip.InterfaceContext{
		ID:            req.ID,
		Config:        e.cfg.FloatingIP.Config,
		Relationships: []floatingip.Relationship{{Target: req.Workload, WorkloadID: req.Workload}},
		Runtime:       rt,
	}

	res, opErr := op(e.controller(), ctx, ic)

	if err := e.store.Save(ctx, req.ID, rt); err != nil {
		return nil, errors.Join(opErr, err)
	}
	if err := e.writeMetrics(opts.MetricsFile); err != nil {
		logger.Error(err, "metrics not written")
	}
	if opErr != nil {
		return nil, opErr
	}
	if !res.Done() {
		return nil, &BusyError{RetryAfter: res.RetryAfter}
	}
	return rt, nil
}
