package allowlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyPath   = errors.New("allowed client DN path is empty")
	ErrMissingKey  = errors.New("yaml mapping has no allowed_client_subject_dn key")
	ErrInvalidUTF8 = errors.New("line is not valid UTF-8")
)

// LoadError 讀取或解析 allow-list 檔案失敗
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load allowed client DN from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type yamlAllowList struct {
	AllowedClientSubjectDN *[]string `yaml:"allowed_client_subject_dn"`
}

/*
LoadFile 讀取 allow-list
.yaml / .yml 以 YAML 解析, 其餘視為純文字: 一行一個 DN, 去除前後空白, 略過空行
擴充: # 開頭的行視為註解; 非 UTF-8 內容視為載入失敗
*/
func LoadFile(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var list []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		list, err = parseYAML(data)
	default:
		list, err = parseText(data)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return list, nil
}

func parseText(data []byte) ([]string, error) {
	list := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// DN 可能很長, 放寬單行上限
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrInvalidUTF8)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// 支援純序列或 allowed_client_subject_dn 欄位兩種寫法
func parseYAML(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}

	var raw []string
	if len(node.Content) > 0 {
		switch node.Content[0].Kind {
		case yaml.SequenceNode:
			if err := node.Content[0].Decode(&raw); err != nil {
				return nil, err
			}
		case yaml.MappingNode:
			var doc yamlAllowList
			if err := node.Content[0].Decode(&doc); err != nil {
				return nil, err
			}
			// 打錯 key 視為載入失敗, 不可清空原本的清單
			if doc.AllowedClientSubjectDN == nil {
				return nil, ErrMissingKey
			}
			raw = *doc.AllowedClientSubjectDN
		default:
			return nil, fmt.Errorf("unexpected yaml document, want sequence or mapping")
		}
	}

	list := []string{}
	for _, dn := range raw {
		if dn = strings.TrimSpace(dn); dn != "" {
			list = append(list, dn)
		}
	}
	return list, nil
}

// Loader 把檔案內容載入 Store
// Reload 會由 watcher 與 SIGHUP 同時呼叫, mu 確保讀檔與替換不交錯
type Loader struct {
	mu     sync.Mutex
	path   string
	store  *Store
	logger zerolog.Logger
}

func NewLoader(path string, store *Store, logger zerolog.Logger) *Loader {
	return &Loader{
		path:   path,
		store:  store,
		logger: logger,
	}
}

func (l *Loader) Path() string {
	return l.path
}

/*
Reload 失敗時保留原本的清單並記錄錯誤
成功時只有內容變動才記錄
*/
func (l *Loader) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := LoadFile(l.path)
	if err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msgf("cannot load allowed client DN from %s", l.path)
		return err
	}

	if l.store.Replace(list) {
		l.logger.Info().Int("count", len(list)).Str("path", l.path).Msgf("load %d DN from %s", len(list), l.path)
	}
	return nil
}
