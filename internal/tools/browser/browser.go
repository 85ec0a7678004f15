// Package browser exposes Playwright-driven browser automation as a
// single action-dispatch tool over a pooled set of browser instances.
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"github.com/sagerun/sage/internal/agent"
)

const defaultWaitMs = 30000

// browserArgs is the union of every action's parameters; each action reads
// the fields it needs and validates them itself.
type browserArgs struct {
	Action   string  `json:"action"`
	URL      string  `json:"url"`
	Selector string  `json:"selector"`
	Text     string  `json:"text"`
	Script   string  `json:"script"`
	Timeout  float64 `json:"timeout"`
	FullPage bool    `json:"full_page"`
}

// action runs one browser operation against an acquired instance.
type action func(instance *BrowserInstance, args browserArgs) (string, error)

// BrowserTool dispatches automation actions to a pooled browser instance.
// Non-idempotent by nature, so the tool cache excludes it.
type BrowserTool struct {
	pool    *Pool
	actions map[string]action
}

// NewBrowserTool creates a browser automation tool over pool.
func NewBrowserTool(pool *Pool) *BrowserTool {
	t := &BrowserTool{pool: pool}
	t.actions = map[string]action{
		"navigate":            t.navigate,
		"click":               t.click,
		"type":                t.typeText,
		"screenshot":          t.screenshot,
		"extract_text":        t.extractText,
		"extract_html":        t.extractHTML,
		"wait_for_element":    t.waitForElement,
		"wait_for_navigation": t.waitForNavigation,
		"execute_js":          t.executeJS,
	}
	return t
}

func (b *BrowserTool) Name() string { return "browser" }

func (b *BrowserTool) Description() string {
	return "Automate web browser interactions including navigation, clicking, form filling, screenshots, content extraction, and JavaScript execution. Supports headless browsing with configurable timeouts and session management."
}

func (b *BrowserTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["navigate", "click", "type", "screenshot", "extract_text", "extract_html", "wait_for_element", "wait_for_navigation", "execute_js"],
				"description": "The browser action to perform"
			},
			"url": {"type": "string", "description": "URL to navigate to (navigate)"},
			"selector": {"type": "string", "description": "CSS selector for the target element (click, type, extract, wait)"},
			"text": {"type": "string", "description": "Text to fill into an input (type)"},
			"script": {"type": "string", "description": "JavaScript to run in the page (execute_js)"},
			"timeout": {"type": "integer", "description": "Timeout in milliseconds for wait actions (default: 30000)"},
			"full_page": {"type": "boolean", "description": "Capture the full page instead of the viewport (screenshot)"}
		},
		"required": ["action"]
	}`)
}

// Execute decodes the action, borrows a browser from the pool, and runs it.
func (b *BrowserTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var args browserArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}

	run, ok := b.actions[args.Action]
	if !ok {
		return &agent.ToolResult{Content: fmt.Sprintf("unknown action: %s", args.Action), IsError: true}, nil
	}

	instance, err := b.pool.Acquire(ctx)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("acquire browser instance: %v", err), IsError: true}, nil
	}
	defer b.pool.Release(instance)

	out, err := run(instance, args)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("%s failed: %v", args.Action, err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: out}, nil
}

func (b *BrowserTool) navigate(instance *BrowserInstance, args browserArgs) (string, error) {
	if args.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	_, err := instance.Page.Goto(args.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", err
	}
	return "navigated to " + args.URL, nil
}

func (b *BrowserTool) click(instance *BrowserInstance, args browserArgs) (string, error) {
	if args.Selector == "" {
		return "", fmt.Errorf("selector is required")
	}
	if err := instance.Page.Click(args.Selector); err != nil {
		return "", err
	}
	return "clicked " + args.Selector, nil
}

func (b *BrowserTool) typeText(instance *BrowserInstance, args browserArgs) (string, error) {
	if args.Selector == "" {
		return "", fmt.Errorf("selector is required")
	}
	if err := instance.Page.Fill(args.Selector, args.Text); err != nil {
		return "", err
	}
	return "filled " + args.Selector, nil
}

func (b *BrowserTool) screenshot(instance *BrowserInstance, args browserArgs) (string, error) {
	shot, err := instance.Page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(args.FullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot), nil
}

func (b *BrowserTool) extractText(instance *BrowserInstance, args browserArgs) (string, error) {
	selector := args.Selector
	if selector == "" {
		selector = "body"
	}
	return instance.Page.TextContent(selector)
}

func (b *BrowserTool) extractHTML(instance *BrowserInstance, args browserArgs) (string, error) {
	if args.Selector == "" {
		return instance.Page.Content()
	}
	result, err := instance.Page.Evaluate(fmt.Sprintf("document.querySelector('%s').innerHTML", args.Selector))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", result), nil
}

func (b *BrowserTool) waitForElement(instance *BrowserInstance, args browserArgs) (string, error) {
	if args.Selector == "" {
		return "", fmt.Errorf("selector is required")
	}
	_, err := instance.Page.WaitForSelector(args.Selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(timeoutOrDefault(args.Timeout)),
	})
	if err != nil {
		return "", err
	}
	return "element appeared: " + args.Selector, nil
}

func (b *BrowserTool) waitForNavigation(instance *BrowserInstance, args browserArgs) (string, error) {
	err := instance.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		Timeout: playwright.Float(timeoutOrDefault(args.Timeout)),
	})
	if err != nil {
		return "", err
	}
	return "navigation completed", nil
}

func (b *BrowserTool) executeJS(instance *BrowserInstance, args browserArgs) (string, error) {
	if args.Script == "" {
		return "", fmt.Errorf("script is required")
	}
	result, err := instance.Page.Evaluate(args.Script)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", result), nil
}

func timeoutOrDefault(ms float64) float64 {
	if ms <= 0 {
		return defaultWaitMs
	}
	return ms
}
