package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/cashew/internal/core/application"
	mnemonic_store "github.com/vulpemventures/cashew/internal/infrastructure/mnemonic-store/in-memory"
	"github.com/vulpemventures/cashew/internal/infrastructure/storage/db/inmemory"
)

var (
	mnemonic  string
	wordCount int

	genSeedCmd = &cobra.Command{
		Use:   "genseed",
		Short: "generate a random mnemonic",
		Long: "this command lets you generate a new random mnemonic to " +
			"initialize a new wallet from scratch",
		RunE: genSeed,
	}
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "initialize with a brand new wallet",
		Long: "this command lets you initialize a new cashew wallet with the " +
			"given mnemonic (or let me create one for you), encrypted with " +
			"your choosen password",
		RunE: initWallet,
	}
)

func init() {
	genSeedCmd.Flags().IntVar(&wordCount, "words", 12, "number of words, either 12 or 24")

	initCmd.Flags().StringVar(
		&mnemonic, "mnemonic", "", "space separated word list as wallet seed",
	)
	initCmd.Flags().IntVar(
		&wordCount, "words", 12, "number of words of the generated mnemonic",
	)
}

func genSeed(_ *cobra.Command, _ []string) error {
	// Generating a mnemonic doesn't touch the storage.
	seedMgr := application.NewSeedManager(
		inmemory.NewRepoManager(), mnemonic_store.NewInMemoryMnemonicStore(), nil,
	)
	words, err := seedMgr.GenerateMnemonic(wordCount)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"mnemonic": strings.Join(words, " ")})
}

func initWallet(_ *cobra.Command, _ []string) error {
	if len(password) <= 0 {
		return fmt.Errorf("missing password")
	}

	cfg, err := newAppConfig()
	if err != nil {
		return err
	}
	defer cfg.Close()

	ctx := context.Background()
	seedMgr := cfg.SeedManager()

	generated := len(mnemonic) <= 0
	words := strings.Fields(mnemonic)
	if generated {
		if words, err = seedMgr.GenerateMnemonic(wordCount); err != nil {
			return err
		}
	}
	if err := seedMgr.CreateWallet(ctx, words, password); err != nil {
		return err
	}

	res := map[string]string{"status": "wallet initialized"}
	if generated {
		res["mnemonic"] = strings.Join(words, " ")
	}
	return printJSON(res)
}
