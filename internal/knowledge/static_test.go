package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleSnippets() []Snippet {
	return []Snippet{
		{Title: "usdc", Content: "USDC 合约信息", Keywords: []string{"usdc"}},
		{Title: "storage", Content: "存储注册说明", Keywords: []string{"storage", "存储"}},
		{Title: "generic", Content: "通用说明"},
		{Title: "quote", Content: "报价窗口说明", Keywords: []string{"quote"}, Tags: []string{"报价"}},
	}
}

func TestQueryMatchesKeyword(t *testing.T) {
	p := NewStaticProvider(sampleSnippets(), 10)

	results := p.Query("swap 100 USDC to NEAR", "")
	titles := map[string]bool{}
	for _, r := range results {
		titles[r.Title] = true
	}
	if !titles["usdc"] {
		t.Fatalf("应命中 usdc 条目: %+v", results)
	}
	if !titles["generic"] {
		t.Fatalf("无关键词的条目应始终命中: %+v", results)
	}
	if titles["storage"] {
		t.Fatalf("未出现的关键词不应命中: %+v", results)
	}
}

func TestQueryMatchesToken(t *testing.T) {
	p := NewStaticProvider(sampleSnippets(), 10)
	results := p.Query("随便换点", "usdc")
	found := false
	for _, r := range results {
		if r.Title == "usdc" {
			found = true
		}
	}
	if !found {
		t.Fatalf("资产符号应参与匹配: %+v", results)
	}
}

func TestQueryMatchesTag(t *testing.T) {
	p := NewStaticProvider(sampleSnippets(), 10)
	results := p.Query("查询报价有效期", "")
	found := false
	for _, r := range results {
		if r.Title == "quote" {
			found = true
		}
	}
	if !found {
		t.Fatalf("标签应参与匹配: %+v", results)
	}
}

func TestQueryRespectsMaxResults(t *testing.T) {
	p := NewStaticProvider(sampleSnippets(), 1)
	results := p.Query("usdc storage quote", "")
	if len(results) != 1 {
		t.Fatalf("结果数量应受上限约束: %d", len(results))
	}
}

func TestLoadStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	content := `[{"title":"usdc","content":"c","keywords":["usdc"]}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	p, err := LoadStaticProvider(path, 0)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if results := p.Query("usdc", ""); len(results) != 1 {
		t.Fatalf("加载后的条目应可检索: %+v", results)
	}

	if _, err := LoadStaticProvider("", 3); err == nil {
		t.Fatalf("空路径应报错")
	}
	if _, err := LoadStaticProvider(filepath.Join(t.TempDir(), "missing.json"), 3); err == nil {
		t.Fatalf("缺失文件应报错")
	}
}
