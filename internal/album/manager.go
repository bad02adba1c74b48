// Package album manages named dataspaces on the local node: their on-disk
// layout, lifecycle state, and per-album spatial indexes.
package album

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-io/tessera/internal/errdefs"
	"github.com/tessera-io/tessera/internal/geocode"
	"github.com/tessera-io/tessera/internal/index"
	"github.com/tessera-io/tessera/internal/model"
	"github.com/tessera-io/tessera/internal/raster"
)

// metaFile sits at the root of every album directory and pins the
// attributes that are immutable after creation.
const metaFile = "album.meta"

// tileExt is the extension of framed tile files.
const tileExt = ".bin"

type meta struct {
	KeyLength int               `json:"key_length"`
	Geocode   geocode.Algorithm `json:"geocode"`
}

// Ownership answers whether the local node owns a routing key. The spatial
// index only carries records the local node owns.
type Ownership interface {
	OwnsLocally(key string) (bool, error)
}

type entry struct {
	album model.Album
	index *index.Index // nil while closed

	// opMu serializes Open's scan-and-publish against concurrent index
	// mutations. A Write landing mid-scan would otherwise miss both the
	// walk and the not-yet-published index, leaving its record invisible
	// until the next reopen.
	opMu sync.RWMutex
}

// Manager tracks the albums under a storage directory.
type Manager struct {
	dir       string
	owner     Ownership
	logger    *zap.Logger
	scanLimit int

	mu     sync.RWMutex
	albums map[string]*entry
}

// NewManager scans dir for existing albums. All discovered albums start
// closed; Open rebuilds their indexes on demand.
func NewManager(dir string, owner Ownership, scanLimit int, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanLimit <= 0 {
		scanLimit = 8
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errdefs.IoFailure("create storage directory", err)
	}

	m := &Manager{
		dir:       dir,
		owner:     owner,
		logger:    logger,
		scanLimit: scanLimit,
		albums:    make(map[string]*entry),
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errdefs.IoFailure("scan storage directory", err)
	}
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		md, err := readMeta(filepath.Join(dir, d.Name(), metaFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			m.logger.Warn("Skipping album with unreadable metadata",
				zap.String("album", d.Name()),
				zap.Error(err))
			continue
		}
		m.albums[d.Name()] = &entry{album: model.Album{
			Name:      d.Name(),
			Algorithm: md.Geocode,
			KeyLength: md.KeyLength,
			State:     model.AlbumClosed,
		}}
		m.logger.Info("Discovered album",
			zap.String("album", d.Name()),
			zap.String("geocode", md.Geocode.String()),
			zap.Int("key_length", md.KeyLength))
	}
	return m, nil
}

func readMeta(path string) (meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return meta{}, err
	}
	var md meta
	if err := json.Unmarshal(data, &md); err != nil {
		return meta{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return md, nil
}

// Create registers a new album and persists its metadata. The new album
// starts closed.
func (m *Manager) Create(name string, alg geocode.Algorithm, keyLength int) (model.Album, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return model.Album{}, errdefs.Newf(errdefs.CodeInvalidGeocodeFilter,
			"invalid album name %q", name)
	}
	switch alg {
	case geocode.Geohash, geocode.Quadtile:
	default:
		return model.Album{}, errdefs.Newf(errdefs.CodeInvalidGeocodeFilter,
			"unknown geocode algorithm %d", alg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.albums[name]; ok {
		return model.Album{}, errdefs.DuplicateAlbum(name)
	}

	if err := os.MkdirAll(filepath.Join(m.dir, name), 0o755); err != nil {
		return model.Album{}, errdefs.IoFailure("create album directory", err)
	}
	data, err := json.Marshal(meta{KeyLength: keyLength, Geocode: alg})
	if err != nil {
		return model.Album{}, errdefs.IoFailure("encode album metadata", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, name, metaFile), data, 0o644); err != nil {
		return model.Album{}, errdefs.IoFailure("write album metadata", err)
	}

	a := model.Album{Name: name, Algorithm: alg, KeyLength: keyLength, State: model.AlbumClosed}
	m.albums[name] = &entry{album: a}
	m.logger.Info("Created album",
		zap.String("album", name),
		zap.String("geocode", alg.String()),
		zap.Int("key_length", keyLength))
	return a, nil
}

// List returns all known albums ordered by name.
func (m *Manager) List() []model.Album {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Album, 0, len(m.albums))
	for _, e := range m.albums {
		out = append(out, e.album)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the album record, open or closed.
func (m *Manager) Get(name string) (model.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.albums[name]
	if !ok {
		return model.Album{}, errdefs.AlbumNotFound(name)
	}
	return e.album, nil
}

// Index returns the album's spatial index, which exists only while the
// album is open.
func (m *Manager) Index(name string) (*index.Index, model.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.albums[name]
	if !ok {
		return nil, model.Album{}, errdefs.AlbumNotFound(name)
	}
	if e.index == nil {
		return nil, e.album, errdefs.AlbumClosed(name)
	}
	return e.index, e.album, nil
}

// Open rebuilds the album's spatial index from the local tile files. Only
// records whose routing keys the local node owns enter the index; tiles
// staged here for other owners remain on disk but invisible to queries.
// Opening an already open album is a no-op.
func (m *Manager) Open(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.albums[name]
	if !ok {
		m.mu.Unlock()
		return errdefs.AlbumNotFound(name)
	}
	if e.index != nil {
		m.mu.Unlock()
		return nil
	}
	album := e.album
	m.mu.Unlock()

	// Holding opMu across the scan keeps writers out until the index is
	// published, so nothing can land between the walk and the publish.
	e.opMu.Lock()
	defer e.opMu.Unlock()

	m.mu.RLock()
	opened := e.index != nil
	m.mu.RUnlock()
	if opened {
		return nil
	}

	idx := index.New()
	if err := m.scanInto(ctx, album, idx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.albums[name]; !ok {
		return errdefs.AlbumNotFound(name)
	}
	if e.index == nil {
		e.index = idx
		e.album.State = model.AlbumOpen
	}
	m.logger.Info("Opened album",
		zap.String("album", name),
		zap.Int("records", e.index.Len()))
	return nil
}

// scanInto walks the album directory reading tile headers and inserts the
// locally owned records into idx.
func (m *Manager) scanInto(ctx context.Context, album model.Album, idx *index.Index) error {
	root := filepath.Join(m.dir, album.Name)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.scanLimit)

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != tileExt {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			hdr, err := raster.ReadHeader(path)
			if err != nil {
				m.logger.Warn("Skipping unreadable tile file",
					zap.String("path", path),
					zap.Error(err))
				return nil
			}
			rec := recordFromHeader(hdr, path)

			key, err := album.RoutingKey(rec.Geocode)
			if err != nil {
				m.logger.Warn("Skipping tile with unroutable geocode",
					zap.String("path", path),
					zap.String("geocode", rec.Geocode),
					zap.Error(err))
				return nil
			}
			owned, err := m.owner.OwnsLocally(key)
			if err != nil {
				return err
			}
			if owned {
				idx.Insert(rec)
			}
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return errdefs.IoFailure("scan album directory", err)
	}
	return nil
}

func recordFromHeader(hdr raster.Header, path string) *model.ImageRecord {
	return &model.ImageRecord{
		ID:            hdr.ID,
		Platform:      hdr.Platform,
		Subdataset:    hdr.Subdataset,
		Geocode:       hdr.Geocode,
		Timestamp:     hdr.Timestamp,
		PixelCoverage: hdr.PixelCoverage,
		CloudCoverage: hdr.CloudCoverage,
		Source:        hdr.Source,
		Provenance:    hdr.Provenance,
		Path:          path,
	}
}

// Close discards the album's spatial index. The on-disk data is untouched
// and a later Open rebuilds the same index. Closing a closed album is a
// no-op.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.albums[name]
	if !ok {
		return errdefs.AlbumNotFound(name)
	}
	if e.index != nil {
		e.index = nil
		e.album.State = model.AlbumClosed
		m.logger.Info("Closed album", zap.String("album", name))
	}
	return nil
}

// TilePath computes the storage path for a record:
// <dir>/<album>/<platform>/<geocode>/<source>/<timestamp>-<subdataset>-<id>.bin.
// The record id keeps distinct records of the same tile scope, such as
// fill inputs sharing a geocode and timestamp, from colliding on disk.
func (m *Manager) TilePath(album string, rec *model.ImageRecord) string {
	return filepath.Join(m.dir, album, rec.Platform, rec.Geocode, rec.Source,
		fmt.Sprintf("%d-%d-%s%s", rec.Timestamp, rec.Subdataset, rec.ID, tileExt))
}

// Write persists a tile and its record into the album directory. When the
// album is open and the local node owns the record's routing key the record
// also enters the spatial index. The stored path is written back into rec.
func (m *Manager) Write(album string, rec *model.ImageRecord, tile *raster.Tile) error {
	m.mu.RLock()
	e, ok := m.albums[album]
	var a model.Album
	if ok {
		a = e.album
	}
	m.mu.RUnlock()
	if !ok {
		return errdefs.AlbumNotFound(album)
	}

	e.opMu.RLock()
	defer e.opMu.RUnlock()

	if err := m.writeTile(album, rec, tile); err != nil {
		return err
	}

	key, err := a.RoutingKey(rec.Geocode)
	if err != nil {
		return err
	}
	owned, err := m.owner.OwnsLocally(key)
	if err != nil {
		return err
	}
	if !owned {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.albums[album]; ok && e.index != nil {
		e.index.Insert(rec)
	}
	return nil
}

// writeTile persists the framed tile file and records its path in rec.
func (m *Manager) writeTile(album string, rec *model.ImageRecord, tile *raster.Tile) error {
	rec.Path = m.TilePath(album, rec)
	if err := os.MkdirAll(filepath.Dir(rec.Path), 0o755); err != nil {
		return errdefs.IoFailure("create tile directory", err)
	}
	return raster.WriteFile(rec.Path, headerFromRecord(rec), tile)
}

// WriteDetached persists a tile without touching the spatial index. Task
// runners use it to make every output of a supersession durable first and
// then publish the whole batch in a single Retire, so queries never see
// the outputs alongside the records they replace.
func (m *Manager) WriteDetached(album string, rec *model.ImageRecord, tile *raster.Tile) error {
	m.mu.RLock()
	_, ok := m.albums[album]
	m.mu.RUnlock()
	if !ok {
		return errdefs.AlbumNotFound(album)
	}
	return m.writeTile(album, rec, tile)
}

func headerFromRecord(rec *model.ImageRecord) raster.Header {
	return raster.Header{
		ID:            rec.ID,
		Platform:      rec.Platform,
		Subdataset:    rec.Subdataset,
		Geocode:       rec.Geocode,
		Timestamp:     rec.Timestamp,
		PixelCoverage: rec.PixelCoverage,
		CloudCoverage: rec.CloudCoverage,
		Source:        rec.Source,
		Provenance:    rec.Provenance,
	}
}

// Retire replaces records in the album's index and deletes the retired
// tile files. Adds and retirements land in one index mutation, so readers
// never observe a half-applied supersession. Like Write, only adds whose
// routing keys the local node owns enter the index.
func (m *Manager) Retire(album string, add []*model.ImageRecord, retire []*model.ImageRecord) error {
	m.mu.RLock()
	e, ok := m.albums[album]
	var a model.Album
	if ok {
		a = e.album
	}
	m.mu.RUnlock()
	if !ok {
		return errdefs.AlbumNotFound(album)
	}

	inserts := make([]*model.ImageRecord, 0, len(add))
	for _, rec := range add {
		key, err := a.RoutingKey(rec.Geocode)
		if err != nil {
			return err
		}
		owned, err := m.owner.OwnsLocally(key)
		if err != nil {
			return err
		}
		if owned {
			inserts = append(inserts, rec)
		}
	}

	ids := make([]string, len(retire))
	for i, rec := range retire {
		ids[i] = rec.ID
	}

	e.opMu.RLock()
	m.mu.RLock()
	if e.index != nil {
		e.index.Apply(inserts, ids)
	}
	m.mu.RUnlock()
	e.opMu.RUnlock()

	for _, rec := range retire {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			return errdefs.IoFailure("remove retired tile file", err)
		}
	}
	return nil
}
