package exporter

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"

	"dscengine/core/types"
	"dscengine/native/dsc"
)

const (
	positionsCSV     = "positions.csv"
	positionsParquet = "positions.parquet"
	manifestFile     = "manifest.json"
)

// Source is the read surface of the engine used to build snapshots.
type Source interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	CollateralTokens() []common.Address
	CollateralBalance(ctx context.Context, user, asset common.Address) (*big.Int, error)
	AccountInformation(ctx context.Context, user common.Address) (*dsc.AccountInfo, error)
}

type Config struct {
	Source Source
	Dir    string
	// Symbols labels collateral assets in the output; unknown assets use
	// their hex address.
	Symbols map[common.Address]string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Exporter writes point-in-time position snapshots as CSV and Parquet with a
// blake3 manifest so downstream consumers can verify the artefacts.
type Exporter struct {
	source  Source
	dir     string
	symbols map[common.Address]string
	now     func() time.Time
	logger  *slog.Logger
}

// Row is one account's balance of one collateral asset together with the
// account-level debt and health.
type Row struct {
	Account       string
	Asset         string
	Symbol        string
	Collateral    *big.Int
	Debt          *big.Int
	CollateralUSD *big.Int
	HealthFactor  *big.Int
}

// Manifest describes a snapshot directory.
type Manifest struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Accounts    int               `json:"accounts"`
	Rows        int               `json:"rows"`
	Digests     map[string]string `json:"blake3"`
}

// Result locates the artefacts of a snapshot run.
type Result struct {
	Dir      string
	Rows     []Row
	Manifest Manifest
}

func New(cfg Config) (*Exporter, error) {
	if cfg.Source == nil {
		return nil, errors.New("exporter: source is required")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("exporter: output dir is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{source: cfg.Source, dir: cfg.Dir, symbols: cfg.Symbols, now: now, logger: logger}, nil
}

// Run snapshots every interval until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("exporter: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := e.Snapshot(ctx)
			if err != nil {
				e.logger.Error("snapshot export failed", "error", err)
				continue
			}
			e.logger.Info("snapshot exported", "dir", result.Dir, "rows", result.Manifest.Rows, "accounts", result.Manifest.Accounts)
		}
	}
}

// Snapshot collects every position and writes a new snapshot directory.
func (e *Exporter) Snapshot(ctx context.Context) (*Result, error) {
	generated := e.now().UTC()
	rows, accounts, err := e.collect(ctx)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(e.dir, generated.Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("exporter: create dir: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, positionsCSV), rows); err != nil {
		return nil, err
	}
	if err := writeParquet(filepath.Join(dir, positionsParquet), rows); err != nil {
		return nil, err
	}
	manifest := Manifest{
		GeneratedAt: generated,
		Accounts:    accounts,
		Rows:        len(rows),
		Digests:     map[string]string{},
	}
	for _, name := range []string{positionsCSV, positionsParquet} {
		digest, err := Digest(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		manifest.Digests[name] = digest
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("exporter: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("exporter: write manifest: %w", err)
	}
	return &Result{Dir: dir, Rows: rows, Manifest: manifest}, nil
}

func (e *Exporter) collect(ctx context.Context) ([]Row, int, error) {
	accounts, err := e.source.Accounts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("exporter: list accounts: %w", err)
	}
	assets := e.source.CollateralTokens()
	var rows []Row
	for _, account := range accounts {
		info, err := e.source.AccountInformation(ctx, account)
		if err != nil {
			return nil, 0, fmt.Errorf("exporter: account %s: %w", account.Hex(), err)
		}
		held := false
		for _, asset := range assets {
			balance, err := e.source.CollateralBalance(ctx, account, asset)
			if err != nil {
				return nil, 0, fmt.Errorf("exporter: balance %s/%s: %w", account.Hex(), asset.Hex(), err)
			}
			if balance.Sign() == 0 {
				continue
			}
			held = true
			rows = append(rows, e.row(info, asset, balance))
		}
		if !held {
			// Debt-only positions still appear once.
			rows = append(rows, e.row(info, common.Address{}, new(big.Int)))
		}
	}
	return rows, len(accounts), nil
}

func (e *Exporter) row(info *dsc.AccountInfo, asset common.Address, balance *big.Int) Row {
	row := Row{
		Account:       info.Account.Hex(),
		Collateral:    balance,
		Debt:          info.Debt,
		CollateralUSD: info.CollateralUSD,
		HealthFactor:  info.HealthFactor,
	}
	if asset != (common.Address{}) {
		row.Asset = asset.Hex()
		row.Symbol = e.symbols[asset]
		if row.Symbol == "" {
			row.Symbol = asset.Hex()
		}
	}
	return row
}

// Digest returns the hex blake3-256 digest of the file at path.
func Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("exporter: open %s: %w", path, err)
	}
	defer file.Close()
	hasher := blake3.New(32, nil)
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("exporter: hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func writeCSV(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exporter: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write([]string{"account", "asset", "symbol", "collateral", "debt", "collateral_usd", "health_factor"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Account,
			row.Asset,
			row.Symbol,
			types.FormatAmount(row.Collateral),
			types.FormatAmount(row.Debt),
			types.FormatAmount(row.CollateralUSD),
			row.HealthFactor.String(),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("exporter: write csv: %w", err)
	}
	return file.Close()
}

type parquetRow struct {
	Account         string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Asset           string `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol          string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollateralUnits string `parquet:"name=collateral_units, type=BYTE_ARRAY, convertedtype=UTF8"`
	DebtUnits       string `parquet:"name=debt_units, type=BYTE_ARRAY, convertedtype=UTF8"`
	CollateralUSD   string `parquet:"name=collateral_usd_units, type=BYTE_ARRAY, convertedtype=UTF8"`
	HealthFactor    string `parquet:"name=health_factor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Healthy         bool   `parquet:"name=healthy, type=BOOLEAN"`
}

func writeParquet(path string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("exporter: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("exporter: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	floor := dsc.DefaultParams().MinHealthFactor
	for _, row := range rows {
		pr := &parquetRow{
			Account:         row.Account,
			Asset:           row.Asset,
			Symbol:          row.Symbol,
			CollateralUnits: row.Collateral.String(),
			DebtUnits:       row.Debt.String(),
			CollateralUSD:   row.CollateralUSD.String(),
			HealthFactor:    row.HealthFactor.String(),
			Healthy:         row.HealthFactor.Cmp(floor) >= 0,
		}
		if err := pw.Write(pr); err != nil {
			fw.Close()
			return fmt.Errorf("exporter: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("exporter: parquet flush: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("exporter: close parquet file: %w", err)
	}
	return nil
}
