package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/ethagent/internal/security"
)

// VersionSources lists the pages and contract files fetched for one version.
type VersionSources struct {
	Version   string
	Docs      []string
	Contracts []string
}

// DefaultSources are the upstream Uniswap v2 and v3 pages and contracts.
var DefaultSources = []VersionSources{
	{
		Version: "v2",
		Docs: []string{
			"https://docs.uniswap.org/contracts/v2/overview",
			"https://docs.uniswap.org/contracts/v2/concepts",
			"https://docs.uniswap.org/contracts/v2/guides",
		},
		Contracts: []string{
			"https://raw.githubusercontent.com/Uniswap/v2-core/master/contracts/UniswapV2Pair.sol",
			"https://raw.githubusercontent.com/Uniswap/v2-core/master/contracts/UniswapV2Factory.sol",
			"https://raw.githubusercontent.com/Uniswap/v2-periphery/master/contracts/UniswapV2Router02.sol",
		},
	},
	{
		Version: "v3",
		Docs: []string{
			"https://docs.uniswap.org/contracts/v3/overview",
			"https://docs.uniswap.org/contracts/v3/concepts",
			"https://docs.uniswap.org/contracts/v3/guides",
		},
		Contracts: []string{
			"https://raw.githubusercontent.com/Uniswap/v3-core/main/contracts/UniswapV3Pool.sol",
			"https://raw.githubusercontent.com/Uniswap/v3-core/main/contracts/UniswapV3Factory.sol",
			"https://raw.githubusercontent.com/Uniswap/v3-periphery/main/contracts/SwapRouter.sol",
		},
	},
}

const maxFetchBytes = 10 << 20

// Fetcher downloads upstream sources into the layout UniswapSource reads.
type Fetcher struct {
	Dir         string
	Sources     []VersionSources
	Client      *http.Client
	Policy      security.URLPolicy
	Concurrency int
	Logger      *slog.Logger
	now         func() time.Time
}

// NewFetcher creates a fetcher for DefaultSources writing under dir.
func NewFetcher(dir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		Dir:         dir,
		Sources:     DefaultSources,
		Client:      &http.Client{Timeout: 30 * time.Second},
		Concurrency: 10,
		Logger:      logger,
		now:         time.Now,
	}
}

// FetchResult counts files written and URLs skipped.
type FetchResult struct {
	Written int
	Failed  []string
}

type fetchJob struct {
	version string
	url     string
	dest    string
	kind    string
}

// Fetch downloads every source. A URL that fails is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context) (FetchResult, error) {
	var jobs []fetchJob
	for _, vs := range f.Sources {
		docsDir := filepath.Join(f.Dir, vs.Version, "docs")
		contractsDir := filepath.Join(f.Dir, vs.Version, "contracts")
		for _, dir := range []string{docsDir, contractsDir} {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return FetchResult{}, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		for _, u := range vs.Docs {
			jobs = append(jobs, fetchJob{vs.Version, u, filepath.Join(docsDir, path.Base(u)+".md"), "documentation"})
		}
		for _, u := range vs.Contracts {
			jobs = append(jobs, fetchJob{vs.Version, u, filepath.Join(contractsDir, path.Base(u)), "contract"})
		}
	}

	ok := make([]bool, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, f.Concurrency))
	for i, job := range jobs {
		g.Go(func() error {
			if err := f.fetchOne(gctx, job); err != nil {
				f.Logger.Warn("fetch failed", "url", job.url, "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}

	var res FetchResult
	for i, job := range jobs {
		if ok[i] {
			res.Written++
		} else {
			res.Failed = append(res.Failed, job.url)
		}
	}
	f.Logger.Info("fetch complete", "written", res.Written, "failed", len(res.Failed))
	return res, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, job fetchJob) error {
	if err := f.Policy.Check(ctx, job.url); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.url, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if err := os.WriteFile(job.dest, body, 0o600); err != nil {
		return err
	}
	side, err := json.MarshalIndent(Sidecar{
		Version:     job.version,
		SourceURL:   job.url,
		ProcessedAt: f.now().UTC(),
		Type:        job.kind,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(job.dest+SidecarSuffix, side, 0o600)
}
