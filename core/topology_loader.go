package core

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/resource-fabric/model"
)

// Topology summarises what LoadTopology added to a network.
type Topology struct {
	PoolNames []string
	LinkIDs   []string
	Transfers []model.TransferSpec
}

// document shapes; unexported so the file format can evolve freely.
type topologyDoc struct {
	Pools     []poolDoc     `yaml:"pools"`
	Links     []linkDoc     `yaml:"links"`
	Transfers []transferDoc `yaml:"transfers"`
}

type poolDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Capacity int    `yaml:"capacity"`
	State    string `yaml:"state"` // online | offline | busy; defaults to online
}

type linkDoc struct {
	A         string `yaml:"a"`
	B         string `yaml:"b"`
	Bandwidth int    `yaml:"bandwidth"`
	Latency   int    `yaml:"latency"`
	Enabled   *bool  `yaml:"enabled"`
	// Permissions lists the policies allowed on the link; omitted means all.
	Permissions []string `yaml:"permissions"`
}

type transferDoc struct {
	Src       string `yaml:"src"`
	Dst       string `yaml:"dst"`
	Amount    int    `yaml:"amount"`
	Priority  int    `yaml:"priority"`
	Kind      string `yaml:"kind"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Policy    string `yaml:"policy"`
}

// LoadTopology reads a YAML (or JSON) topology document from r and adds its
// pools and links to net.
//
// A malformed document fails immediately. Individual invalid entries are
// skipped and reported together in the returned error, alongside the summary
// of everything that was loaded.
func LoadTopology(net *Network, r io.Reader) (*Topology, error) {
	if net == nil {
		return nil, fmt.Errorf("LoadTopology: network is nil")
	}

	var doc topologyDoc
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("LoadTopology: decode failed: %w", err)
	}

	result := &Topology{
		PoolNames: make([]string, 0, len(doc.Pools)),
		LinkIDs:   make([]string, 0, len(doc.Links)),
		Transfers: make([]model.TransferSpec, 0, len(doc.Transfers)),
	}
	var errs error

	for i, pd := range doc.Pools {
		if pd.Capacity < 0 {
			errs = multierr.Append(errs, fmt.Errorf("pool %d (%q): %w: negative capacity", i, pd.Name, ErrPoolBadInput))
			continue
		}
		pool := NewPool(pd.Name, pd.Type, pd.Capacity)
		pool.SetState(stateFromString(pd.State))
		if err := net.AddPool(pool); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pool %d (%q): %w", i, pd.Name, err))
			continue
		}
		result.PoolNames = append(result.PoolNames, pd.Name)
	}

	for i, ld := range doc.Links {
		mask := model.PermitAll
		if ld.Permissions != nil {
			var err error
			mask, err = permissionsFromStrings(ld.Permissions)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("link %d (%s-%s): %w", i, ld.A, ld.B, err))
				continue
			}
		}
		link, err := net.Connect(ld.A, ld.B, ld.Bandwidth, ld.Latency)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("link %d (%s-%s): %w", i, ld.A, ld.B, err))
			continue
		}
		link.SetPermissions(mask)
		if ld.Enabled != nil && !*ld.Enabled {
			link.Disable()
		}
		result.LinkIDs = append(result.LinkIDs, link.ID)
	}

	for i, td := range doc.Transfers {
		spec := model.TransferSpec{
			TransferRequest: model.TransferRequest{
				Amount:   td.Amount,
				Src:      td.Src,
				Dst:      td.Dst,
				Priority: td.Priority,
				Kind:     td.Kind,
			},
			Timeout: time.Duration(td.TimeoutMs) * time.Millisecond,
		}
		if td.Policy != "" {
			p, err := model.ParsePolicy(td.Policy)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("transfer %d: %w", i, err))
				continue
			}
			spec.Policy = &p
		}
		result.Transfers = append(result.Transfers, spec)
	}

	return result, errs
}

func stateFromString(s string) model.PoolState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offline":
		return model.PoolOffline
	case "busy":
		return model.PoolBusy
	default:
		return model.PoolOnline
	}
}

func permissionsFromStrings(names []string) (uint32, error) {
	var mask uint32
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			return model.PermitAll, nil
		}
		p, err := model.ParsePolicy(name)
		if err != nil {
			return 0, err
		}
		mask |= p.Bit()
	}
	return mask, nil
}
