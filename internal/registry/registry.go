// Package registry holds the set of monitored DEX contracts and classifies
// transaction destinations against it. A Registry is immutable once built.
package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dexwatch/internal/abistore"
	"dexwatch/internal/model"
)

// Definition is one configured DEX: a factory and its router addresses.
type Definition struct {
	Name      string   `mapstructure:"name" json:"name"`
	Version   int      `mapstructure:"version" json:"version"`
	Factory   string   `mapstructure:"factory" json:"factory"`
	Addresses []string `mapstructure:"addresses" json:"addresses"`
}

// Resolver supplies contract interfaces.
type Resolver interface {
	Resolve(ctx context.Context, address common.Address) (abistore.Interface, error)
}

type Factory struct {
	Address   common.Address
	Interface abistore.Interface
	Name      string
	Version   int
}

type RouterAddress struct {
	Address   common.Address
	Interface abistore.Interface
}

// Router groups the router addresses of one DEX with its factory.
type Router struct {
	Addresses []RouterAddress
	Factory   Factory
	Name      string
	Version   int
}

type routerRef struct {
	router  int
	address int
}

// Registry is the ordered, read-only set of routers.
type Registry struct {
	routers   []Router
	byRouter  map[common.Address]routerRef
	byFactory map[common.Address]int
}

// New indexes routers. When an address appears more than once, the first
// occurrence in enumeration order wins.
func New(routers []Router) *Registry {
	r := &Registry{
		routers:   routers,
		byRouter:  make(map[common.Address]routerRef),
		byFactory: make(map[common.Address]int),
	}
	for i := range routers {
		for j := range routers[i].Addresses {
			addr := routers[i].Addresses[j].Address
			if _, ok := r.byRouter[addr]; !ok {
				r.byRouter[addr] = routerRef{router: i, address: j}
			}
		}
		if _, ok := r.byFactory[routers[i].Factory.Address]; !ok {
			r.byFactory[routers[i].Factory.Address] = i
		}
	}
	return r
}

// Build validates every definition, then resolves all interfaces. Definitions
// resolve in parallel; the resulting order matches defs.
func Build(ctx context.Context, resolver Resolver, defs []Definition, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed := make([]parsedDefinition, 0, len(defs))
	for _, def := range defs {
		p, err := parseDefinition(def)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	routers := make([]Router, len(parsed))
	g, gctx := errgroup.WithContext(ctx)
	for i := range parsed {
		i := i
		g.Go(func() error {
			router, err := buildRouter(gctx, resolver, parsed[i])
			if err != nil {
				return err
			}
			routers[i] = router
			logger.Debug("dex loaded",
				zap.String("dex", router.Name),
				zap.Int("version", router.Version),
				zap.String("factory", router.Factory.Address.Hex()),
				zap.Int("routers", len(router.Addresses)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return New(routers), nil
}

func buildRouter(ctx context.Context, resolver Resolver, p parsedDefinition) (Router, error) {
	factoryIface, err := resolver.Resolve(ctx, p.factory)
	if err != nil {
		return Router{}, fmt.Errorf("dex %q factory: %w", p.def.Name, err)
	}

	router := Router{
		Factory: Factory{
			Address:   p.factory,
			Interface: factoryIface,
			Name:      p.def.Name,
			Version:   p.def.Version,
		},
		Name:      p.def.Name,
		Version:   p.def.Version,
		Addresses: make([]RouterAddress, 0, len(p.addresses)),
	}
	for _, addr := range p.addresses {
		iface, err := resolver.Resolve(ctx, addr)
		if err != nil {
			return Router{}, fmt.Errorf("dex %q router: %w", p.def.Name, err)
		}
		router.Addresses = append(router.Addresses, RouterAddress{Address: addr, Interface: iface})
	}
	return router, nil
}

// Routers returns the routers in enumeration order.
func (r *Registry) Routers() []Router {
	return r.routers
}

// Addresses returns every router and factory address, routers first.
func (r *Registry) Addresses() []common.Address {
	out := make([]common.Address, 0, len(r.byRouter)+len(r.byFactory))
	seen := make(map[common.Address]struct{})
	for i := range r.routers {
		for _, ra := range r.routers[i].Addresses {
			if _, ok := seen[ra.Address]; !ok {
				seen[ra.Address] = struct{}{}
				out = append(out, ra.Address)
			}
		}
	}
	for i := range r.routers {
		addr := r.routers[i].Factory.Address
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}

// Classification is the result of Classify. Router is set for router and
// factory roles; Address is set for the router role only.
type Classification struct {
	Role    model.Role
	Router  *Router
	Address *RouterAddress
}

// Interface returns the contract interface that matched, if any.
func (c Classification) Interface() (abistore.Interface, bool) {
	switch {
	case c.Address != nil:
		return c.Address.Interface, true
	case c.Role == model.RoleFactory && c.Router != nil:
		return c.Router.Factory.Interface, true
	default:
		return abistore.Interface{}, false
	}
}

// Classify resolves a transaction destination to a role. Router addresses are
// checked before factories; a nil destination is a contract creation.
func (r *Registry) Classify(to *common.Address) Classification {
	if to == nil {
		return Classification{Role: model.RoleContractCreation}
	}
	if ref, ok := r.byRouter[*to]; ok {
		router := &r.routers[ref.router]
		return Classification{
			Role:    model.RoleRouter,
			Router:  router,
			Address: &router.Addresses[ref.address],
		}
	}
	if idx, ok := r.byFactory[*to]; ok {
		return Classification{Role: model.RoleFactory, Router: &r.routers[idx]}
	}
	return Classification{Role: model.RoleUnknown}
}
