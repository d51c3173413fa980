package allowlist

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFileText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_client_dn.txt")
	writeFile(t, path, "  CN=alice,O=SURF  \n\n# retired\n\t\nCN=bob,O=SURF\r\n")

	list, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"CN=alice,O=SURF", "CN=bob,O=SURF"}, list)
}

func TestLoadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_client_dn.txt")
	writeFile(t, path, "\n \n")

	list, err := LoadFile(path)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()

	seq := filepath.Join(dir, "seq.yaml")
	writeFile(t, seq, "- CN=alice\n- ' CN=bob '\n- ''\n")
	list, err := LoadFile(seq)
	require.NoError(t, err)
	require.Equal(t, []string{"CN=alice", "CN=bob"}, list)

	mapping := filepath.Join(dir, "map.yml")
	writeFile(t, mapping, "allowed_client_subject_dn:\n  - CN=carol\n")
	list, err = LoadFile(mapping)
	require.NoError(t, err)
	require.Equal(t, []string{"CN=carol"}, list)

	scalar := filepath.Join(dir, "scalar.yaml")
	writeFile(t, scalar, "just a string\n")
	_, err = LoadFile(scalar)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, scalar, loadErr.Path)
}

func TestLoadFileYAMLMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed.yaml")
	writeFile(t, path, "allowed_client_dn:\n  - CN=alice\n")

	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrMissingKey)

	writeFile(t, path, "allowed_client_subject_dn: []\n")
	list, err := LoadFile(path)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLoadFileInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_client_dn.txt")
	writeFile(t, path, "CN=alice\nCN=\xff\xfe\n")

	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidUTF8)
	require.Contains(t, err.Error(), "line 2")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile("")
	require.ErrorIs(t, err, ErrEmptyPath)

	missing := filepath.Join(t.TempDir(), "missing.txt")
	_, err = LoadFile(missing)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, err.Error(), "cannot load allowed client DN from "+missing)
}

type LoaderTestSuite struct {
	suite.Suite
	path   string
	store  *Store
	logs   *bytes.Buffer
	loader *Loader
}

func TestLoaderSuite(t *testing.T) {
	suite.Run(t, new(LoaderTestSuite))
}

func (s *LoaderTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "allowed_client_dn.txt")
	s.store = NewStore()
	s.logs = &bytes.Buffer{}
	s.loader = NewLoader(s.path, s.store, zerolog.New(s.logs))
}

func (s *LoaderTestSuite) TestReloadLogsOnlyOnChange() {
	writeFile(s.T(), s.path, "CN=alice\nCN=bob\n")

	s.Require().NoError(s.loader.Reload())
	s.Require().True(s.store.Allowed("CN=bob"))
	s.Require().Contains(s.logs.String(), "load 2 DN from "+s.path)

	s.logs.Reset()
	s.Require().NoError(s.loader.Reload())
	s.Require().Zero(s.logs.Len(), "unchanged list should not be logged")
}

func (s *LoaderTestSuite) TestReloadKeepsPreviousListOnError() {
	writeFile(s.T(), s.path, "CN=alice\n")
	s.Require().NoError(s.loader.Reload())

	s.Require().NoError(os.Remove(s.path))
	err := s.loader.Reload()
	s.Require().Error(err)

	s.Require().True(s.store.Allowed("CN=alice"))
	s.Require().True(strings.Contains(s.logs.String(), `"level":"error"`))
}

func (s *LoaderTestSuite) TestReloadKeepsPreviousListOnYAMLKeyTypo() {
	s.path = filepath.Join(s.T().TempDir(), "allowed.yaml")
	s.loader = NewLoader(s.path, s.store, zerolog.New(s.logs))

	writeFile(s.T(), s.path, "allowed_client_subject_dn:\n  - CN=alice\n")
	s.Require().NoError(s.loader.Reload())

	writeFile(s.T(), s.path, "allowed_client_dn:\n  - CN=alice\n")
	s.Require().ErrorIs(s.loader.Reload(), ErrMissingKey)
	s.Require().Equal(1, s.store.Len())
	s.Require().True(s.store.Allowed("CN=alice"))
}

func (s *LoaderTestSuite) TestReloadKeepsPreviousListOnInvalidUTF8() {
	writeFile(s.T(), s.path, "CN=alice\n")
	s.Require().NoError(s.loader.Reload())

	writeFile(s.T(), s.path, "CN=\xff\n")
	s.Require().ErrorIs(s.loader.Reload(), ErrInvalidUTF8)
	s.Require().True(s.store.Allowed("CN=alice"))
}

// 併發 Reload 結束後, store 必須與檔案最後內容一致
func (s *LoaderTestSuite) TestConcurrentReloadEndsWithFileContent() {
	writeFile(s.T(), s.path, "CN=alice\nCN=bob\n")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loader.Reload()
		}()
	}
	wg.Wait()

	s.Require().Equal([]string{"CN=alice", "CN=bob"}, s.store.Snapshot())
}
