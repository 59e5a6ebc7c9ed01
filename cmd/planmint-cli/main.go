package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/layer-3/planmint"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "planmint-cli",
		Usage: "sign and send requests to a planmint server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:4000",
				Usage:   "planmint server URL",
				EnvVars: []string{"PLANMINT_SERVER"},
			},
			&cli.StringFlag{
				Name:    "key",
				Usage:   "wallet secret key, base58 or JSON byte array",
				EnvVars: []string{"PLANMINT_WALLET_SECRET"},
			},
			&cli.StringFlag{
				Name:  "key-file",
				Usage: "file holding the wallet secret key",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "generate a throwaway wallet",
				Action: keygen,
			},
			{
				Name:      "mint",
				Usage:     "mint plan tokens to the wallet",
				ArgsUsage: "PLAN",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "quantity", Aliases: []string{"q"}, Value: 1},
				},
				Action: mint,
			},
			{
				Name:      "burn",
				Usage:     "burn one plan token held by the wallet",
				ArgsUsage: "PLAN",
				Action:    burn,
			},
			{
				Name:   "claim",
				Usage:  "claim the soulbound token",
				Action: claim,
			},
			{
				Name:      "log-burn",
				Usage:     "record a burn the wallet submitted itself",
				ArgsUsage: "MINT TXID",
				Action:    logBurn,
			},
			{
				Name:      "reconcile",
				Usage:     "resolve the receipt of a timed out request",
				ArgsUsage: "RECEIPT",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "attempts", Value: 1, Usage: "poll until finalized, at most this many times"},
					&cli.DurationFlag{Name: "every", Value: 5 * time.Second},
				},
				Action: reconcile,
			},
			{
				Name:   "health",
				Usage:  "show the issuing authority and its balance",
				Action: health,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func client(c *cli.Context) planmint.Client {
	return planmint.NewHTTPClient(c.String("server"), nil)
}

func signer(c *cli.Context) (*planmint.WalletSigner, error) {
	secret := c.String("key")
	if path := c.String("key-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		secret = string(raw)
	}
	if secret == "" {
		return nil, errors.New("a wallet key is required (--key, --key-file or PLANMINT_WALLET_SECRET)")
	}
	return planmint.ParseWalletSigner(secret)
}

func arg(c *cli.Context, i int, name string) (string, error) {
	v := strings.TrimSpace(c.Args().Get(i))
	if v == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return v, nil
}

func keygen(c *cli.Context) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]string{
		"address": base58.Encode(pub),
		"secret":  base58.Encode(priv),
	})
}

func mint(c *cli.Context) error {
	plan, err := arg(c, 0, "PLAN")
	if err != nil {
		return err
	}
	s, err := signer(c)
	if err != nil {
		return err
	}
	res, err := client(c).MintNFT(c.Context, s.MintRequest(plan, c.Int("quantity")))
	return report(c, res, err)
}

func burn(c *cli.Context) error {
	plan, err := arg(c, 0, "PLAN")
	if err != nil {
		return err
	}
	s, err := signer(c)
	if err != nil {
		return err
	}
	res, err := client(c).BurnNFT(c.Context, s.BurnRequest(plan))
	return report(c, res, err)
}

func claim(c *cli.Context) error {
	s, err := signer(c)
	if err != nil {
		return err
	}
	res, err := client(c).MintSoulbound(c.Context, s.SoulboundRequest())
	return report(c, res, err)
}

func logBurn(c *cli.Context) error {
	mintAddr, err := arg(c, 0, "MINT")
	if err != nil {
		return err
	}
	txID, err := arg(c, 1, "TXID")
	if err != nil {
		return err
	}
	s, err := signer(c)
	if err != nil {
		return err
	}
	if err := client(c).LogBurn(c.Context, s.Address(), mintAddr, txID); err != nil {
		return report(c, nil, err)
	}
	return printJSON(c, map[string]bool{"success": true})
}

func reconcile(c *cli.Context) error {
	receipt, err := arg(c, 0, "RECEIPT")
	if err != nil {
		return err
	}

	attempts := c.Uint("attempts")
	if attempts == 0 {
		attempts = 1
	}

	api := client(c)
	var (
		res    *planmint.Result
		result error
	)
	// only a still-pending transaction is worth asking about again
	_ = retry.Retry(func(attempt uint) error {
		res, result = api.Reconcile(c.Context, receipt)
		if planmint.IsCode(result, planmint.CodeLedgerTimeout) {
			return result
		}
		return nil
	}, strategy.Limit(attempts), strategy.Wait(c.Duration("every")))

	return report(c, res, result)
}

func health(c *cli.Context) error {
	h, err := client(c).Health(c.Context)
	if err != nil {
		return report(c, nil, err)
	}
	return printJSON(c, h)
}

// report prints res, or the server's failure body so a timeout receipt is not lost
func report(c *cli.Context, res *planmint.Result, err error) error {
	if err == nil {
		return printJSON(c, res)
	}
	var apiErr *planmint.APIError
	if errors.As(err, &apiErr) {
		if perr := printJSON(c, apiErr); perr != nil {
			return perr
		}
	}
	return err
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
