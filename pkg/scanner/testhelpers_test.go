package scanner

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/internal/testdb"
	"github.com/shishobooks/shelfscan/pkg/config"
	"github.com/shishobooks/shelfscan/pkg/contentid"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/pages"
	"github.com/shishobooks/shelfscan/pkg/registry"
	"github.com/shishobooks/shelfscan/pkg/volumes"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const (
	volumeUSB     = "VOL-USB"
	volumeArchive = "VOL-ARCHIVE"
	volumeStick   = "VOL-STICK"
)

// testContext holds a scanner wired to an in-memory catalog and a fake
// device table with two volumes: usbRoot on D: and archiveRoot on E:.
type testContext struct {
	t           *testing.T
	ctx         context.Context
	db          *bun.DB
	config      *config.Config
	registry    *registry.Service
	calculator  *contentid.Calculator
	devices     []volumes.Volume
	prefixes    map[string]string
	enumerator  *volumes.StaticEnumerator
	identifier  *volumes.Identifier
	scanner     *Scanner
	usbRoot     string
	archiveRoot string
}

func newTestContext(t *testing.T, configure ...func(cfg *config.Config)) *testContext {
	t.Helper()

	base := t.TempDir()
	usbRoot := filepath.Join(base, "usb")
	archiveRoot := filepath.Join(base, "archive")
	require.NoError(t, os.MkdirAll(usbRoot, 0755))
	require.NoError(t, os.MkdirAll(archiveRoot, 0755))

	devices := []volumes.Volume{
		{Designator: "D:", Serial: volumeUSB},
		{Designator: "E:", Serial: volumeArchive},
	}
	prefixes := map[string]string{
		usbRoot:     "D:",
		archiveRoot: "E:",
	}
	enumerator := volumes.NewStaticEnumerator(devices...)
	identifier := volumes.NewIdentifier(enumerator, volumes.PrefixDesignator(prefixes))

	cfg := config.NewForTest()
	for _, fn := range configure {
		fn(cfg)
	}

	db := testdb.New(t)
	reg := registry.NewService(db)
	calc := contentid.NewCalculator(pages.NewSource(), cfg.ThumbnailWidth, cfg.ThumbnailHeight)

	return &testContext{
		t:           t,
		ctx:         logger.New().WithContext(context.Background()),
		db:          db,
		config:      cfg,
		registry:    reg,
		calculator:  calc,
		devices:     devices,
		prefixes:    prefixes,
		enumerator:  enumerator,
		identifier:  identifier,
		scanner:     New(cfg, reg, identifier, calc),
		usbRoot:     usbRoot,
		archiveRoot: archiveRoot,
	}
}

func (tc *testContext) scan(roots ...string) *Result {
	tc.t.Helper()
	result, err := tc.scanner.Scan(tc.ctx, roots, nil)
	require.NoError(tc.t, err)
	return result
}

func (tc *testContext) books() []*models.Book {
	tc.t.Helper()
	var books []*models.Book
	err := tc.db.NewSelect().
		Model(&books).
		Relation("Locations").
		Order("b.id ASC").
		Scan(tc.ctx)
	require.NoError(tc.t, err)
	return books
}

func (tc *testContext) locations() []*models.Location {
	tc.t.Helper()
	locs, err := tc.registry.ListLocations(tc.ctx, registry.ListLocationsOptions{})
	require.NoError(tc.t, err)
	return locs
}

// unplug drops volumeID from the device table, as a udev removal would.
func (tc *testContext) unplug(volumeID string) {
	tc.t.Helper()
	var kept []volumes.Volume
	for _, v := range tc.devices {
		if v.Serial != volumeID {
			kept = append(kept, v)
		}
	}
	tc.devices = kept
	tc.enumerator.Set(kept...)
	require.NoError(tc.t, tc.identifier.Refresh(tc.ctx))
}

// mount attaches another volume at dir, which may lie inside a root.
func (tc *testContext) mount(dir, designator, volumeID string) {
	tc.t.Helper()
	require.NoError(tc.t, os.MkdirAll(dir, 0755))
	tc.prefixes[dir] = designator
	tc.devices = append(tc.devices, volumes.Volume{Designator: designator, Serial: volumeID})
	tc.enumerator.Set(tc.devices...)
	tc.identifier = volumes.NewIdentifier(tc.enumerator, volumes.PrefixDesignator(tc.prefixes))
	tc.scanner = New(tc.config, tc.registry, tc.identifier, tc.calculator)
}

// writeZip writes an archive holding the given entries.
func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.Create(dst)
	require.NoError(t, err)
	defer out.Close()
	_, err = io.Copy(out, in)
	require.NoError(t, err)
}
