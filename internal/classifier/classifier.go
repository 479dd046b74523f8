// Package classifier filters the raw transaction feed down to transactions
// touching the registry, or creating contracts, and republishes them tagged
// with their role.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dexwatch/internal/broadcast"
	"dexwatch/internal/model"
	"dexwatch/internal/registry"
)

// Matcher classifies transaction destinations.
type Matcher interface {
	Classify(to *common.Address) registry.Classification
}

// Observer receives classification counts.
type Observer interface {
	Classified(role model.Role)
	Dropped()
	Decoded(n int)
	Lagged(subscriber string, skipped uint64)
}

type nopObserver struct{}

func (nopObserver) Classified(model.Role) {}
func (nopObserver) Dropped()               {}
func (nopObserver) Decoded(int)            {}
func (nopObserver) Lagged(string, uint64) {}

// Classifier is a single-consumer filter-and-tag stage.
type Classifier struct {
	matcher  Matcher
	in       *broadcast.Receiver[model.Transaction]
	out      *broadcast.Channel[model.ClassifiedTx]
	observer Observer
	logger   *zap.Logger
}

// New builds a classifier reading from in and publishing to out. in must be a
// subscription owned by this classifier alone.
func New(matcher Matcher, in *broadcast.Receiver[model.Transaction], out *broadcast.Channel[model.ClassifiedTx], observer Observer, logger *zap.Logger) *Classifier {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		matcher:  matcher,
		in:       in,
		out:      out,
		observer: observer,
		logger:   logger,
	}
}

// Run consumes until the input channel closes (returns nil), ctx is done, or
// publishing fails.
func (c *Classifier) Run(ctx context.Context) error {
	for {
		tx, err := c.in.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			switch {
			case errors.As(err, &lagged):
				c.logger.Warn("classifier lagged", zap.Uint64("skipped", lagged.Skipped))
				c.observer.Lagged("classifier", lagged.Skipped)
				continue
			case errors.Is(err, broadcast.ErrClosed):
				return nil
			default:
				return err
			}
		}

		if err := c.handle(tx); err != nil {
			return err
		}
	}
}

func (c *Classifier) handle(tx model.Transaction) error {
	classification := c.matcher.Classify(tx.To)
	matched, ok := tag(tx, classification)
	if !ok {
		c.observer.Dropped()
		return nil
	}

	if _, err := c.out.Send(matched); err != nil {
		return fmt.Errorf("publish classified tx: %w", err)
	}
	c.observer.Classified(matched.Role)

	if iface, ok := classification.Interface(); ok {
		c.decode(tx, matched, iface.ABI)
	}
	return nil
}

// tag reports whether tx should be republished and with which role.
func tag(tx model.Transaction, classification registry.Classification) (model.ClassifiedTx, bool) {
	switch classification.Role {
	case model.RoleRouter, model.RoleFactory:
		out := model.ClassifiedTx{Transaction: tx, Role: classification.Role}
		if classification.Router != nil {
			out.Dex = classification.Router.Name
			out.DexVersion = classification.Router.Version
		}
		return out, true
	case model.RoleContractCreation:
		return model.ClassifiedTx{Transaction: tx, Role: model.RoleContractCreation}, true
	default:
		return model.ClassifiedTx{}, false
	}
}
