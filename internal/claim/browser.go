package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chromedp/chromedp"

	"github.com/bytestrike/faucet_bot/internal/ledger"
)

const (
	// FaucetURL is the Google Cloud Sepolia faucet page.
	FaucetURL = "https://cloud.google.com/application/web3/faucet/ethereum/sepolia"

	signInURL = "https://accounts.google.com/signin"
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	settleDelay     = 3 * time.Second
	responseDelay   = 5 * time.Second
	selectorTimeout = 10 * time.Second
	buttonTimeout   = 5 * time.Second
	pageTimeout     = 60 * time.Second
	attemptTimeout  = 5 * time.Minute
)

var (
	txHashPattern = regexp.MustCompile(`0x[a-fA-F0-9]{64}`)

	errLoginFailed    = errors.New("Google login failed")
	errNoClaimButton  = errors.New("Could not find claim button")
	errNotConfirmed   = errors.New("Success confirmation not found")
	addressInputQuery = `input[type="text"], input[placeholder*="address"], input[name*="address"]`

	claimButtons = []string{
		`//button[contains(., "Send")]`,
		`//button[contains(., "Claim")]`,
		`//button[contains(., "Request")]`,
		`//button[@type="submit"]`,
	}
	successCheck = `/success|sent|claimed|transaction/i.test(document.body ? document.body.innerText : "")`
)

// BrowserConfig configures the automated faucet login.
type BrowserConfig struct {
	Email          string
	Password       string
	WalletAddress  string
	Headless       bool
	ExecPath       string
	ScreenshotsDir string
}

// BrowserSource claims by driving a Chromium instance through Google sign-in
// and the faucet form. Each attempt launches and closes its own browser.
type BrowserSource struct {
	cfg    BrowserConfig
	clock  clock.Clock
	logger *slog.Logger
}

// NewBrowserSource validates cfg and builds the source.
func NewBrowserSource(cfg BrowserConfig, logger *slog.Logger) (*BrowserSource, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("google credentials are required")
	}
	if cfg.WalletAddress == "" {
		return nil, fmt.Errorf("faucet wallet address is required")
	}
	if cfg.ScreenshotsDir == "" {
		cfg.ScreenshotsDir = filepath.Join("data", ledger.ScreenshotsDir)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{cfg: cfg, clock: clock.New(), logger: logger}, nil
}

// Attempt signs in, submits the faucet form and reports what the page showed.
func (b *BrowserSource) Attempt(ctx context.Context) (record ledger.ClaimRecord) {
	record = ledger.ClaimRecord{Timestamp: ledger.At(b.clock.Now()), Amount: Amount}
	defer func() {
		if r := recover(); r != nil {
			record.Success = false
			record.Error = fmt.Sprint(r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	b.logger.Info("initializing browser for faucet claim", slog.Bool("headless", b.cfg.Headless))

	if err := b.login(browserCtx); err != nil {
		b.logger.Error("google login failed", slog.Any("error", err))
		record.Error = errLoginFailed.Error()
		record.Screenshot = b.screenshot(browserCtx, "error")
		return record
	}

	txHash, err := b.claim(browserCtx)
	if err != nil {
		record.Error = err.Error()
		if errors.Is(err, errNotConfirmed) {
			record.Screenshot = b.screenshot(browserCtx, "claim")
		} else {
			record.Screenshot = b.screenshot(browserCtx, "error")
		}
		return record
	}

	record.Success = true
	record.TxHash = txHash
	record.Screenshot = b.screenshot(browserCtx, "claim")
	return record
}

func (b *BrowserSource) login(ctx context.Context) error {
	b.logger.Info("logging into google account")
	if err := chromedp.Run(ctx,
		chromedp.Navigate(signInURL),
		chromedp.WaitVisible(`input[type="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="email"]`, b.cfg.Email, chromedp.ByQuery),
		chromedp.Click(`//button[contains(., "Next")]`, chromedp.BySearch),
		chromedp.Sleep(settleDelay),
	); err != nil {
		return fmt.Errorf("enter email: %w", err)
	}

	password := `input[type="password"]:not([aria-hidden="true"])`
	waitCtx, cancel := context.WithTimeout(ctx, selectorTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(password, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := chromedp.Run(ctx,
		chromedp.SendKeys(password, b.cfg.Password, chromedp.ByQuery),
		chromedp.Click(`//button[contains(., "Next")]`, chromedp.BySearch),
		chromedp.Sleep(settleDelay),
	); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	return nil
}

func (b *BrowserSource) claim(ctx context.Context) (string, error) {
	b.logger.Info("navigating to sepolia faucet")
	pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()
	if err := chromedp.Run(pageCtx, chromedp.Navigate(FaucetURL), chromedp.Sleep(settleDelay)); err != nil {
		return "", fmt.Errorf("open faucet: %w", err)
	}

	inputCtx, cancelInput := context.WithTimeout(ctx, selectorTimeout)
	defer cancelInput()
	if err := chromedp.Run(inputCtx,
		chromedp.WaitVisible(addressInputQuery, chromedp.ByQuery),
		chromedp.SendKeys(addressInputQuery, b.cfg.WalletAddress, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("fill wallet address: %w", err)
	}

	if !b.clickFirst(ctx, claimButtons) {
		return "", errNoClaimButton
	}

	b.logger.Info("waiting for faucet response")
	if err := chromedp.Run(ctx, chromedp.Sleep(responseDelay)); err != nil {
		return "", err
	}
	if !b.waitForSuccess(ctx) {
		b.logger.Warn("could not confirm claim success")
		return "", errNotConfirmed
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		b.logger.Warn("could not read page for transaction hash", slog.Any("error", err))
		return "", nil
	}
	return ExtractTxHash(html), nil
}

func (b *BrowserSource) clickFirst(ctx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		clickCtx, cancel := context.WithTimeout(ctx, buttonTimeout)
		err := chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.BySearch))
		cancel()
		if err == nil {
			return true
		}
	}
	return false
}

func (b *BrowserSource) waitForSuccess(ctx context.Context) bool {
	deadline := time.Now().Add(4 * buttonTimeout)
	for time.Now().Before(deadline) {
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(successCheck, &found)); err == nil && found {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
	return false
}

// screenshot captures the page to <dir>/<prefix>-<unix ms>.png and returns the
// path, or "" when capture fails.
func (b *BrowserSource) screenshot(ctx context.Context, prefix string) string {
	var buf []byte
	shotCtx, cancel := context.WithTimeout(ctx, selectorTimeout)
	defer cancel()
	if err := chromedp.Run(shotCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return ""
	}
	path := ScreenshotPath(b.cfg.ScreenshotsDir, prefix, b.clock.Now())
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		b.logger.Warn("failed to write screenshot", slog.String("path", path), slog.Any("error", err))
		return ""
	}
	return path
}

// ExtractTxHash returns the first 32-byte hex hash found in s.
func ExtractTxHash(s string) string {
	return txHashPattern.FindString(s)
}

// ScreenshotPath names a capture taken at t.
func ScreenshotPath(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d.png", prefix, t.UnixMilli()))
}
