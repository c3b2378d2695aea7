package collector

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Aggregation 决定每个分类使用几个源
type Aggregation string

const (
	// AggregateAll 使用并合并分类下的全部源（跨源去重）
	AggregateAll Aggregation = "all"
	// AggregateFirst 只使用分类下声明的第一个源
	AggregateFirst Aggregation = "first"
)

// Category 是一个分类及其有序的源列表
type Category struct {
	ID      string
	Label   string
	Sources []FeedDescriptor
}

// Registry 静态源配置，启动时加载后只读
type Registry struct {
	Mode       Aggregation
	Categories []Category
}

// DefaultRegistry 内置的默认源
func DefaultRegistry() *Registry {
	return &Registry{
		Mode: AggregateAll,
		Categories: []Category{
			{
				ID:    "society",
				Label: "社会",
				Sources: []FeedDescriptor{
					RSSFeed{Name: "BBC 中文网 社会", URL: "https://feeds.bbci.co.uk/zhongwen/simp/rss.xml"},
				},
			},
			{
				ID:    "tech",
				Label: "科技",
				Sources: []FeedDescriptor{
					RSSFeed{Name: "钛媒体", URL: "https://www.tmtpost.com/feed"},
				},
			},
			{
				ID:    "economy",
				Label: "经济",
				Sources: []FeedDescriptor{
					RSSFeed{Name: "中国新闻网 财经频道", URL: "https://www.chinanews.com.cn/rss/finance.xml"},
				},
			},
		},
	}
}

// Active 按聚合模式返回分类实际参与抓取的源，保持声明顺序
func (r *Registry) Active(c Category) []FeedDescriptor {
	if r.Mode == AggregateFirst && len(c.Sources) > 1 {
		return c.Sources[:1]
	}
	return c.Sources
}

// Label 返回分类的展示名，找不到时返回 id 本身
func (r *Registry) Label(id string) string {
	for _, c := range r.Categories {
		if c.ID == id {
			if c.Label != "" {
				return c.Label
			}
			break
		}
	}
	return id
}

// Validate 检查分类 id 唯一、源字段完整
func (r *Registry) Validate() error {
	switch r.Mode {
	case AggregateAll, AggregateFirst:
	default:
		return fmt.Errorf("registry: unknown aggregation mode %q", r.Mode)
	}
	if len(r.Categories) == 0 {
		return fmt.Errorf("registry: no categories")
	}

	seen := make(map[string]struct{}, len(r.Categories))
	for _, c := range r.Categories {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("registry: category with empty id")
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("registry: duplicate category %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		for _, s := range c.Sources {
			if strings.TrimSpace(s.SourceName()) == "" {
				return fmt.Errorf("registry: category %q has a source without name", c.ID)
			}
			u, err := url.Parse(s.FeedURL())
			if err != nil || !u.IsAbs() || u.Host == "" {
				return fmt.Errorf("registry: source %q has invalid url %q", s.SourceName(), s.FeedURL())
			}
			if hf, ok := s.(HTMLFeed); ok && strings.TrimSpace(hf.Selector) == "" {
				return fmt.Errorf("registry: html source %q requires a selector", hf.Name)
			}
		}
	}
	return nil
}

// registryFile 对应 YAML 配置：
//
//	mode: all
//	categories:
//	  - id: tech
//	    label: 科技
//	    sources:
//	      - name: 钛媒体
//	        url: https://www.tmtpost.com/feed
//	        kind: rss
type registryFile struct {
	Mode       string `yaml:"mode"`
	Categories []struct {
		ID      string        `yaml:"id"`
		Label   string        `yaml:"label"`
		Sources []sourceEntry `yaml:"sources"`
	} `yaml:"categories"`
}

type sourceEntry struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Kind     string `yaml:"kind"`
	Selector string `yaml:"selector"`
	Browser  bool   `yaml:"browser"`
}

func (e sourceEntry) descriptor() (FeedDescriptor, error) {
	kind := FeedKind(strings.ToLower(strings.TrimSpace(e.Kind)))
	if kind == "" {
		// 未写 kind 时：有选择器视为 html，否则视为 rss
		kind = KindRSS
		if e.Selector != "" {
			kind = KindHTML
		}
	}
	switch kind {
	case KindRSS:
		return RSSFeed{Name: e.Name, URL: e.URL}, nil
	case KindHTML:
		return HTMLFeed{Name: e.Name, URL: e.URL, Selector: e.Selector, Browser: e.Browser}, nil
	default:
		return nil, fmt.Errorf("registry: source %q has unknown kind %q", e.Name, e.Kind)
	}
}

// ParseRegistry 解析 YAML 内容并校验
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: decode yaml: %w", err)
	}

	reg := &Registry{Mode: Aggregation(strings.ToLower(strings.TrimSpace(f.Mode)))}
	if reg.Mode == "" {
		reg.Mode = AggregateAll
	}
	for _, fc := range f.Categories {
		c := Category{ID: strings.TrimSpace(fc.ID), Label: strings.TrimSpace(fc.Label)}
		for _, e := range fc.Sources {
			d, err := e.descriptor()
			if err != nil {
				return nil, err
			}
			c.Sources = append(c.Sources, d)
		}
		reg.Categories = append(reg.Categories, c)
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadRegistry 从 YAML 文件读取源配置
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return ParseRegistry(data)
}
