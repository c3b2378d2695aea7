package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

type renderRequest struct {
	URL string `json:"url"`
	// 可选，等待该选择器出现后再取 HTML，默认 body
	WaitFor string `json:"waitFor"`
}

type renderResponse struct {
	OK    bool   `json:"ok"`
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

type textRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
}

type textResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	// renderSettle 页面 ready 后再等一会儿，给前端框架渲染列表的时间
	renderSettle = 1500 * time.Millisecond
	pageTimeout  = 20 * time.Second

	defaultMaxChars = 4000
	maxMaxChars     = 8000
)

// scraper 整个进程复用一个 headless 实例，每个请求开一个新标签页
type scraper struct {
	browser context.Context
}

func (s *scraper) tab() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(s.browser, pageTimeout)
	tabCtx, cancelTab := chromedp.NewContext(ctx)
	return tabCtx, func() {
		cancelTab()
		cancel()
	}
}

func (s *scraper) render(url, waitFor string) (string, error) {
	ctx, cancel := s.tab()
	defer cancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(waitFor, chromedp.ByQuery),
		chromedp.Sleep(renderSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func (s *scraper) text(url string) (string, error) {
	ctx, cancel := s.tab()
	defer cancel()

	var text string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(renderSettle),
		chromedp.Evaluate(articleTextJS, &text),
	)
	return text, err
}

func main() {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		log.Printf("warn: warmup chromedp failed: %v", err)
	}
	s := &scraper{browser: browserCtx}

	mux := http.NewServeMux()

	// /render 返回 JS 渲染后的整页 HTML，供 HTML 源的选择器提取使用
	mux.HandleFunc("/render", func(w http.ResponseWriter, r *http.Request) {
		var req renderRequest
		if !decode(w, r, &req, &req.URL) {
			return
		}
		if req.WaitFor == "" {
			req.WaitFor = "body"
		}

		html, err := s.render(req.URL, req.WaitFor)
		if err != nil {
			log.Printf("render error: %v (url=%s)", err, req.URL)
			writeJSON(w, http.StatusOK, renderResponse{Error: err.Error()})
			return
		}
		log.Printf("rendered %s (%d bytes)", req.URL, len(html))
		writeJSON(w, http.StatusOK, renderResponse{OK: true, HTML: html})
	})

	// /extract 返回渲染后页面的正文文本，供文章详情在静态提取过短时使用
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		var req textRequest
		if !decode(w, r, &req, &req.URL) {
			return
		}
		if req.MaxChars <= 0 || req.MaxChars > maxMaxChars {
			req.MaxChars = defaultMaxChars
		}

		text, err := s.text(req.URL)
		if err != nil {
			log.Printf("extract error: %v (url=%s)", err, req.URL)
			writeJSON(w, http.StatusOK, textResponse{Error: err.Error()})
			return
		}
		text = squeezeBlankLines(text)
		if text == "" {
			writeJSON(w, http.StatusOK, textResponse{Error: "empty content"})
			return
		}
		if rs := []rune(text); len(rs) > req.MaxChars {
			text = string(rs[:req.MaxChars])
		}
		log.Printf("extracted %s (%d chars)", req.URL, len([]rune(text)))
		writeJSON(w, http.StatusOK, textResponse{OK: true, Text: text})
	})

	addr := ":" + getEnv("PORT", "4000")
	log.Printf("browser-scraper listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("http server error: %v", err)
	}
}

// decode 只接受 POST JSON，url 为必填
func decode(w http.ResponseWriter, r *http.Request, dst any, url *string) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, textResponse{Error: "invalid json"})
		return false
	}
	if strings.TrimSpace(*url) == "" {
		writeJSON(w, http.StatusBadRequest, textResponse{Error: "url is required"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// articleTextJS 取第一个足够长的正文容器的 innerText，都不够长时拼接页面中的长段落
const articleTextJS = `(() => {
  const containers = [
    ".article-body__content", ".article-body", ".article-content", ".post-content",
    ".entry-content", "article", "[role=article]", "#content", ".news-content",
    ".rich_media_content", "#js_content"
  ];
  for (const sel of containers) {
    const el = document.querySelector(sel);
    const t = el ? (el.innerText || "").trim() : "";
    if (t.length >= 100) return t;
  }
  const paras = [];
  for (const p of document.querySelectorAll("p")) {
    const t = (p.innerText || "").trim();
    if (t.length >= 20) paras.push(t);
  }
  return paras.join("\n\n");
})()`

// squeezeBlankLines 统一换行并把多个空行压成一个
func squeezeBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
