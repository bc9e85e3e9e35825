package handlers

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/nat"
)

// Pairs handles the pairs command.
func Pairs(ctx context.Context, opts Options, network string, out io.Writer) error {
	e, err := setup(ctx, opts, false)
	if err != nil {
		return err
	}
	gw, err := e.gateway(ctx)
	if err != nil {
		return err
	}

	pairs, err := nat.ListAssignedPairs(ctx, gw)
	if err != nil {
		return err
	}
	sorted := slices.SortedFunc(maps.Keys(pairs), func(a, b gateway.AssignedIPs) int {
		return cmp.Or(cmp.Compare(a.External, b.External), cmp.Compare(a.Internal, b.Internal))
	})

	if _, err := io.WriteString(out, renderPairs(gw.Name(), sorted)); err != nil {
		return err
	}

	if network != "" {
		routed, err := nat.IsRoutedToNetwork(ctx, gw, network)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(out, renderRouted(network, routed)); err != nil {
			return err
		}
	}
	return e.writeMetrics(opts.MetricsFile)
}

// FreeIP handles the free-ip command.
func FreeIP(ctx context.Context, opts Options, out io.Writer) error {
	e, err := setup(ctx, opts, false)
	if err != nil {
		return err
	}
	gw, err := e.gateway(ctx)
	if err != nil {
		return err
	}
	ip, err := nat.FreeExternalAddress(ctx, gw)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ip)
	return nil
}
