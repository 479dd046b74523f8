package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type resolvedInterface struct {
	Address   string    `json:"address"`
	FetchedAt time.Time `json:"fetched_at"`
	Methods   []string  `json:"methods"`
	Events    []string  `json:"events"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	for _, arg := range args {
		if !common.IsHexAddress(arg) {
			return fmt.Errorf("invalid address: %s", arg)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	store := newABIStore(cfg, logger)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, arg := range args {
		iface, err := store.Resolve(ctx, common.HexToAddress(arg))
		if err != nil {
			return err
		}

		out := resolvedInterface{
			Address:   iface.Address.Hex(),
			FetchedAt: iface.FetchedAt.UTC(),
			Methods:   make([]string, 0, len(iface.ABI.Methods)),
			Events:    make([]string, 0, len(iface.ABI.Events)),
		}
		for _, method := range iface.ABI.Methods {
			out.Methods = append(out.Methods, method.Sig)
		}
		for _, event := range iface.ABI.Events {
			out.Events = append(out.Events, event.Sig)
		}
		sort.Strings(out.Methods)
		sort.Strings(out.Events)

		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}
