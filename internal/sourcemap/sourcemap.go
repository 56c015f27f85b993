// Package sourcemap loads, caches, and queries source maps, translating
// locations and names between a compiled artifact and its original
// source using the standard source-map v3 format.
package sourcemap

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// Location is a zero-indexed compiled position, matching the wire
// convention used by CDP.
type Location struct {
	File   string
	Line   int
	Column int
}

// SourceLocation is a 1-indexed user-facing position.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

var sourceMappingURLPattern = regexp.MustCompile(`//[#@]\s*sourceMappingURL=(\S+)`)

// entry is one cached, already-parsed map, shared by every concurrent
// caller that asked for the same compiled file.
type entry struct {
	once     sync.Once
	consumer *gosourcemap.Consumer
	err      error
}

// Manager caches parsed source maps per compiled file and answers
// bidirectional location/name queries. One Manager is scoped to a single
// debug session.
type Manager struct {
	mu       sync.Mutex
	cache    map[string]*entry
	sameDir  bool // tsc-style .ts-next-to-.js heuristic enabled
}

// NewManager constructs an empty, session-scoped cache. sameDirHeuristic
// enables the tsc-style layout assumption used by MapSourceToCompiled.
func NewManager(sameDirHeuristic bool) *Manager {
	return &Manager{
		cache:   make(map[string]*entry),
		sameDir: sameDirHeuristic,
	}
}

// LoadSourceMap locates and parses the map associated with jsFile,
// looking first for an embedded sourceMappingURL directive and falling
// back to a co-located ".map" file. Concurrent first-access calls for the
// same file coalesce into a single parse. Missing files or parse errors
// return (nil, false), not an error — the caller treats an unmapped file
// as "no source map available".
func (m *Manager) LoadSourceMap(jsFile string) (*gosourcemap.Consumer, bool) {
	m.mu.Lock()
	e, ok := m.cache[jsFile]
	if !ok {
		e = &entry{}
		m.cache[jsFile] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.consumer, e.err = parseSourceMapFor(jsFile)
	})

	if e.err != nil || e.consumer == nil {
		return nil, false
	}
	return e.consumer, true
}

func parseSourceMapFor(jsFile string) (*gosourcemap.Consumer, error) {
	data, err := os.ReadFile(jsFile)
	if err != nil {
		return nil, err
	}

	mapPath := embeddedMapPath(jsFile, data)
	if mapPath == "" {
		mapPath = jsFile + ".map"
	}

	mapData, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, err
	}

	return gosourcemap.Parse(mapPath, mapData)
}

// embeddedMapPath scans a compiled file for its last
// `//# sourceMappingURL=` directive and resolves it relative to the
// file's directory. Returns "" if no directive is present or it
// references a data URL.
func embeddedMapPath(jsFile string, data []byte) string {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	var last string
	for scanner.Scan() {
		line := scanner.Text()
		if m := sourceMappingURLPattern.FindStringSubmatch(line); m != nil {
			last = m[1]
		}
	}
	if last == "" || strings.HasPrefix(last, "data:") {
		return ""
	}
	if filepath.IsAbs(last) {
		return last
	}
	return filepath.Join(filepath.Dir(jsFile), last)
}

// MapCompiledToSource translates a compiled-file location back to its
// source pre-image. Returns ok=false if no map is loaded or the position
// has no mapping.
func (m *Manager) MapCompiledToSource(loc Location) (SourceLocation, bool) {
	consumer, ok := m.LoadSourceMap(loc.File)
	if !ok {
		return SourceLocation{}, false
	}

	file, _, line, col, ok := consumer.Source(loc.Line+1, loc.Column)
	if !ok {
		return SourceLocation{}, false
	}
	return SourceLocation{File: file, Line: line, Column: col}, true
}

// MapSourceToCompiled performs the reverse translation. The source-map
// format has no efficient built-in reverse index, so this uses the
// tsc-style heuristic documented in the wire conventions: the compiled
// file lives in the same directory as the source with its extension
// swapped to .js, and the line number carries over unchanged (segment
// granularity means exact column correspondence isn't guaranteed either
// direction). Unlike other Location values, the returned Line is
// therefore the 1-indexed line given in loc.
func (m *Manager) MapSourceToCompiled(loc SourceLocation) (Location, bool) {
	if !m.sameDir {
		return Location{}, false
	}
	ext := filepath.Ext(loc.File)
	if ext == "" {
		return Location{}, false
	}
	compiledFile := strings.TrimSuffix(loc.File, ext) + ".js"
	if _, err := os.Stat(compiledFile); err != nil {
		return Location{}, false
	}
	return Location{File: compiledFile, Line: loc.Line, Column: loc.Column}, true
}

// MapVariableName returns the original symbol name recorded at the given
// compiled position, or ("", false) if the map has no name mapping
// there.
func (m *Manager) MapVariableName(jsFile, origName string, line, column int) (string, bool) {
	consumer, ok := m.LoadSourceMap(jsFile)
	if !ok {
		return "", false
	}
	_, name, _, _, ok := consumer.Source(line+1, column)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// GetVariableNamesAtLocation collects every distinct mapped name found on
// the given line, scanning a small column window around the reported
// position since the consumer only exposes point queries.
func (m *Manager) GetVariableNamesAtLocation(jsFile string, line, column int) []string {
	consumer, ok := m.LoadSourceMap(jsFile)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	const window = 200
	start := column - window
	if start < 0 {
		start = 0
	}
	for col := start; col < column+window; col++ {
		_, name, _, _, ok := consumer.Source(line+1, col)
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// ClearCache discards every parsed map.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*entry)
}

// GetCacheSize returns the number of compiled files with a cache entry
// (successful or not).
func (m *Manager) GetCacheSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// HasSourceMap reports whether jsFile currently resolves to a loaded map.
func (m *Manager) HasSourceMap(jsFile string) bool {
	_, ok := m.LoadSourceMap(jsFile)
	return ok
}

// GetCachedSourceMap returns the previously loaded consumer for jsFile
// without triggering a fresh parse, or false if nothing is cached.
func (m *Manager) GetCachedSourceMap(jsFile string) (*gosourcemap.Consumer, bool) {
	m.mu.Lock()
	e, ok := m.cache[jsFile]
	m.mu.Unlock()
	if !ok || e.err != nil || e.consumer == nil {
		return nil, false
	}
	return e.consumer, true
}
