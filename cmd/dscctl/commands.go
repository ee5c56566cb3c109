package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"dscengine/cmd/internal/passphrase"
)

const (
	gatewayKey  = "gateway"
	timeoutKey  = "timeout"
	tokenEnvKey = "token-env"
	authKey     = "auth"

	accountKey     = "account"
	assetKey       = "asset"
	amountKey      = "amount"
	collateralKey  = "collateral"
	debtKey        = "debt"
	liquidatorKey  = "liquidator"
	targetKey      = "target"
	debtToCoverKey = "debt-to-cover"
	limitKey       = "limit"

	defaultGateway  = "http://127.0.0.1:8080"
	defaultTokenEnv = "DSC_GATEWAY_TOKEN"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dscctl",
		Short:         "Operate a dscd stablecoin engine through its gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	gateway := os.Getenv("DSC_GATEWAY")
	if gateway == "" {
		gateway = defaultGateway
	}
	flags.String(gatewayKey, gateway, "Gateway base URL (DSC_GATEWAY)")
	flags.Duration(timeoutKey, 15*time.Second, "Request timeout")
	flags.Bool(authKey, false, "Send a bearer token read from --token-env or prompted on the terminal")
	flags.String(tokenEnvKey, defaultTokenEnv, "Environment variable holding the bearer token")

	root.AddCommand(
		queryCommand("account <address>", "Show an account's debt, collateral value and health factor", 1,
			func(args []string) (string, url.Values) { return "/v1/accounts/" + args[0], nil }),
		queryCommand("balance <address> <asset>", "Show an account's deposited balance of one asset", 2,
			func(args []string) (string, url.Values) {
				return "/v1/accounts/" + args[0] + "/collateral/" + args[1], nil
			}),
		queryCommand("collateral", "List the accepted collateral assets and their price feeds", 0,
			func([]string) (string, url.Values) { return "/v1/collateral", nil }),
		queryCommand("params", "Show the engine's risk parameters", 0,
			func([]string) (string, url.Values) { return "/v1/params", nil }),
		queryCommand("solvency", "Show system-wide debt and collateral totals", 0,
			func([]string) (string, url.Values) { return "/v1/solvency", nil }),
		queryCommand("value <asset> <amount>", "Price an amount of collateral in USD", 2,
			func(args []string) (string, url.Values) {
				return "/v1/value/" + args[0], url.Values{"amount": {args[1]}}
			}),
		eventsCommand(),
		operationCommand("deposit", "Deposit collateral", "/v1/deposit", accountKey, assetKey, amountKey),
		operationCommand("redeem", "Withdraw collateral", "/v1/redeem", accountKey, assetKey, amountKey),
		operationCommand("mint", "Mint stablecoin against deposited collateral", "/v1/mint", accountKey, amountKey),
		operationCommand("burn", "Repay stablecoin debt", "/v1/burn", accountKey, amountKey),
		operationCommand("deposit-and-mint", "Deposit collateral and mint in one operation", "/v1/deposit-and-mint",
			accountKey, assetKey, collateralKey, debtKey),
		operationCommand("redeem-for-debt", "Repay debt and withdraw collateral in one operation", "/v1/redeem-for-debt",
			accountKey, assetKey, collateralKey, debtKey),
		operationCommand("liquidate", "Cover an unhealthy account's debt in exchange for its collateral", "/v1/liquidate",
			liquidatorKey, targetKey, assetKey, debtToCoverKey),
		operationCommand("faucet", "Fund a development account with collateral", "/v1/dev/faucet",
			accountKey, assetKey, amountKey),
	)
	return root
}

// bodyFields maps flag names onto the gateway's JSON request fields.
var bodyFields = map[string]string{
	accountKey:     "account",
	assetKey:       "asset",
	amountKey:      "amount",
	collateralKey:  "collateral",
	debtKey:        "debt",
	liquidatorKey:  "liquidator",
	targetKey:      "target",
	debtToCoverKey: "debtToCover",
}

var flagUsage = map[string]string{
	accountKey:     "Account address (hex or bech32)",
	assetKey:       "Collateral asset address",
	amountKey:      "Amount in tokens, or raw units with a wei: prefix",
	collateralKey:  "Collateral amount in tokens, or raw units with a wei: prefix",
	debtKey:        "Stablecoin amount in tokens, or raw units with a wei: prefix",
	liquidatorKey:  "Liquidator address",
	targetKey:      "Address of the account being liquidated",
	debtToCoverKey: "Stablecoin debt to cover",
}

func queryCommand(use, short string, nargs int, route func(args []string) (string, url.Values)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(c *cobra.Command, args []string) error {
			cl, err := clientFor(c)
			if err != nil {
				return err
			}
			escaped := make([]string, len(args))
			for i, arg := range args {
				escaped[i] = url.PathEscape(strings.TrimSpace(arg))
			}
			path, query := route(escaped)
			payload, err := cl.get(c.Context(), path, query)
			if err != nil {
				return err
			}
			return printJSON(c, payload)
		},
	}
}

func eventsCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "events",
		Short: "List recently committed engine events",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cl, err := clientFor(c)
			if err != nil {
				return err
			}
			flags := c.Flags()
			query := url.Values{}
			if account, _ := flags.GetString(accountKey); strings.TrimSpace(account) != "" {
				query.Set("account", strings.TrimSpace(account))
			}
			if limit, _ := flags.GetInt(limitKey); limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			payload, err := cl.get(c.Context(), "/v1/events", query)
			if err != nil {
				return err
			}
			return printJSON(c, payload)
		},
	}
	c.Flags().String(accountKey, "", "Only events naming this account")
	c.Flags().Int(limitKey, 0, "Maximum number of events")
	return c
}

func operationCommand(use, short, path string, keys ...string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			body, err := requestBody(c.Flags(), keys)
			if err != nil {
				return err
			}
			cl, err := clientFor(c)
			if err != nil {
				return err
			}
			payload, err := cl.post(c.Context(), path, body)
			if err != nil {
				return err
			}
			return printJSON(c, payload)
		},
	}
	for _, key := range keys {
		c.Flags().String(key, "", flagUsage[key])
		_ = c.MarkFlagRequired(key)
	}
	return c
}

func requestBody(flags *pflag.FlagSet, keys []string) (map[string]string, error) {
	body := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := flags.GetString(key)
		if err != nil {
			return nil, err
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("--%s must not be empty", key)
		}
		body[bodyFields[key]] = value
	}
	return body, nil
}

func clientFor(c *cobra.Command) (*client, error) {
	flags := c.Flags()
	base, err := flags.GetString(gatewayKey)
	if err != nil {
		return nil, err
	}
	timeout, err := flags.GetDuration(timeoutKey)
	if err != nil {
		return nil, err
	}
	var token func() (string, error)
	if auth, _ := flags.GetBool(authKey); auth {
		envVar, _ := flags.GetString(tokenEnvKey)
		token = passphrase.NewSource(envVar, "gateway token").Get
	}
	return newClient(base, timeout, token)
}

func printJSON(c *cobra.Command, payload []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		_, err = c.OutOrStdout().Write(payload)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(c.OutOrStdout())
	return err
}
