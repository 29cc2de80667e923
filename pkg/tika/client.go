// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"docchat-go/internal/config"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotConfigured 在未配置 Tika 地址时返回。
var ErrNotConfigured = errors.New("tika server not configured")

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。ServerURL 为空时返回 nil。
func NewClient(cfg config.TikaConfig) *Client {
	if cfg.ServerURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExtractText 根据文件后缀推断 MIME 类型，并调用 Tika 提取纯文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	body, err := c.put(ctx, fileReader, fileName, "text/plain")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ExtractPages 请求 Tika 的 XHTML 输出，按 <div class="page"> 逐页收集文本。
// 每页内的段落、标题、列表项和表格单元格以空格连接，其他标记被忽略。
// 没有分页结构的文档（例如 Word）整个 body 视为一页。
func (c *Client) ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error) {
	body, err := c.put(ctx, bytes.NewReader(data), fileName, "text/html")
	if err != nil {
		return nil, err
	}
	return ParsePages(bytes.NewReader(body))
}

// ParsePages 解析 Tika 生成的 XHTML。
func ParsePages(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse tika xhtml: %w", err)
	}

	pages := doc.Find("div.page")
	if pages.Length() == 0 {
		pages = doc.Find("body")
	}

	var out []string
	pages.Each(func(_ int, page *goquery.Selection) {
		var items []string
		page.Find("p, h1, h2, h3, h4, h5, h6, li, td, th").Each(func(_ int, item *goquery.Selection) {
			if t := strings.TrimSpace(item.Text()); t != "" {
				items = append(items, t)
			}
		})
		out = append(out, strings.Join(items, " "))
	})
	return out, nil
}

func (c *Client) put(ctx context.Context, fileReader io.Reader, fileName, accept string) ([]byte, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("create tika request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tika: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tika response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika returned [%d]: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
