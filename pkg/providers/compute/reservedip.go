package compute

import (
	"context"
	"fmt"
)

// ReservedIPChooser picks one of the unassigned addresses, or returns nil to ask
// for a new one. It is only called when no address is already on the server.
type ReservedIPChooser func(ctx context.Context, unassigned []ReservedIP, elsewhere int) (*ReservedIP, error)

// Reconciliation is the outcome of ReconcileReservedIP.
type Reconciliation struct {
	IP              ReservedIP
	AlreadyAttached bool
	Created         bool
}

// ReconcileReservedIP makes sure exactly one reserved address is attached to
// serverID. An address already on the server is returned untouched. Otherwise the
// chooser picks an unassigned address or asks for a new one in the server's
// location, and the result is assigned.
func (p *Provider) ReconcileReservedIP(ctx context.Context, serverID int64, choose ReservedIPChooser) (*Reconciliation, error) {
	if serverID == 0 {
		return nil, errNoServer
	}
	ips, err := p.api.ListReservedIPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reserved ips: %w", err)
	}

	var unassigned []ReservedIP
	elsewhere := 0
	for _, ip := range ips {
		switch ip.ServerID {
		case serverID:
			p.logger.Info().Str("ip", ip.IP).Int64("server_id", serverID).Msg("reserved ip already attached")
			return &Reconciliation{IP: ip, AlreadyAttached: true}, nil
		case 0:
			unassigned = append(unassigned, ip)
		default:
			elsewhere++
		}
	}

	chosen, err := choose(ctx, unassigned, elsewhere)
	if err != nil {
		return nil, err
	}

	result := &Reconciliation{}
	if chosen == nil {
		location := p.serverLocation(ctx, serverID)
		created, err := p.api.CreateReservedIP(ctx, location, fmt.Sprintf("launchpad server %d", serverID))
		if err != nil {
			return nil, fmt.Errorf("create reserved ip in %s: %w", location, err)
		}
		p.logger.Info().Str("ip", created.IP).Str("location", location).Msg("reserved ip created")
		chosen = created
		result.Created = true
	}

	if err := p.api.AssignReservedIP(ctx, chosen.ID, serverID); err != nil {
		if !isAlreadyAssigned(err) {
			return nil, fmt.Errorf("assign reserved ip %s to server %d: %w", chosen.IP, serverID, err)
		}
		p.logger.Info().Str("ip", chosen.IP).Msg("reserved ip was already assigned")
	}
	chosen.ServerID = serverID
	result.IP = *chosen
	return result, nil
}

func (p *Provider) serverLocation(ctx context.Context, serverID int64) string {
	inst, err := p.api.GetServer(ctx, serverID)
	if err != nil || inst == nil || inst.Location == "" {
		p.logger.Warn().Err(err).Int64("server_id", serverID).Str("fallback", DefaultLocation).Msg("could not resolve server location")
		return DefaultLocation
	}
	return inst.Location
}
