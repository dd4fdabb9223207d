package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pocketalbum/photofeed/internal/exif"
	"github.com/pocketalbum/photofeed/internal/rendition"
	"github.com/pocketalbum/photofeed/internal/storage"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingStore      = errors.New("blob store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingImage      = errors.New("image payload is required")
	// ErrNotFound indicates that no photo exists for the requested identifier.
	ErrNotFound = errors.New("photos: photo not found")
	noOpLogger  = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "photos.service.new"
	opCreatePhoto = "photos.create"
	opUpdatePhoto = "photos.update"
	opDeletePhoto = "photos.delete"
	opListPhotos  = "photos.list"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Store      storage.BlobStore
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service owns the photo lifecycle: every mutation keeps the record store
// and the blob store consistent, with the record row as source of truth.
type Service struct {
	db         *gorm.DB
	store      storage.BlobStore
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// parsedFields holds the validated metadata shared by create and update.
type parsedFields struct {
	takenAt     *time.Time
	coordinates *Coordinates
}

func parseMetadataFields(takenAtRaw, latRaw, lonRaw string) (parsedFields, error) {
	takenAt, err := ParseTakenAt(takenAtRaw)
	if err != nil {
		return parsedFields{}, err
	}
	return parsedFields{
		takenAt:     takenAt,
		coordinates: ParseCoordinates(latRaw, lonRaw),
	}, nil
}

// Create ingests an uploaded image: renditions are generated and stored
// first, and the record row is inserted last so that a visible record always
// has both blobs behind it.
func (s *Service) Create(ctx context.Context, request CreateRequest) (PhotoView, error) {
	if len(request.Image) == 0 {
		s.logError(opCreatePhoto, "missing_image", errMissingImage)
		return PhotoView{}, newServiceError(opCreatePhoto, "missing_image", errMissingImage)
	}

	fields, err := parseMetadataFields(request.TakenAt, request.Lat, request.Lon)
	if err != nil {
		s.logError(opCreatePhoto, "invalid_taken_at", err)
		return PhotoView{}, newServiceError(opCreatePhoto, "invalid_taken_at", err)
	}

	// Explicit form values win; EXIF only fills the gaps.
	metadata := exif.Extract(bytes.NewReader(request.Image))
	if fields.takenAt == nil {
		fields.takenAt = metadata.TakenAt
	}
	if fields.coordinates == nil && metadata.Coordinates != nil {
		fields.coordinates = &Coordinates{
			Latitude:  metadata.Coordinates.Latitude,
			Longitude: metadata.Coordinates.Longitude,
		}
	}

	source, err := rendition.Decode(bytes.NewReader(request.Image))
	if err != nil {
		s.logError(opCreatePhoto, "decode_failed", err)
		return PhotoView{}, newServiceError(opCreatePhoto, "decode_failed", err)
	}

	gridBlob, feedBlob, err := generateRenditions(source)
	if err != nil {
		s.logError(opCreatePhoto, "rendition_failed", err)
		return PhotoView{}, newServiceError(opCreatePhoto, "rendition_failed", err)
	}

	photoID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePhoto, "id_generation_failed", err)
		return PhotoView{}, newServiceError(opCreatePhoto, "id_generation_failed", err)
	}

	createdAt := s.clock().UTC()
	baseName := storage.DeriveBaseName(request.FileName, createdAt)
	gridKey, feedKey := storage.KeyPair(baseName)

	if err := s.storeRenditions(ctx, gridKey, feedKey, gridBlob, feedBlob); err != nil {
		s.logError(opCreatePhoto, "store_write_failed", err,
			zap.String("grid_key", gridKey),
			zap.String("feed_key", feedKey))
		return PhotoView{}, newServiceError(opCreatePhoto, "store_write_failed", err)
	}

	record := Photo{
		ID:           photoID,
		Caption:      request.Caption,
		CreatedAt:    createdAt,
		TakenAt:      fields.takenAt,
		LocationName: request.LocationName,
		GridAssetKey: gridKey,
		FeedAssetKey: feedKey,
	}
	if fields.coordinates != nil {
		record.Latitude = &fields.coordinates.Latitude
		record.Longitude = &fields.coordinates.Longitude
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreatePhoto, "record_insert_failed", err, zap.String("photo_id", photoID))
		s.removeBlobs(ctx, opCreatePhoto, gridKey, feedKey)
		return PhotoView{}, newServiceError(opCreatePhoto, "record_insert_failed", err)
	}

	view, err := s.resolveView(ctx, record)
	if err != nil {
		s.logError(opCreatePhoto, "url_resolve_failed", err, zap.String("photo_id", photoID))
		return PhotoView{}, newServiceError(opCreatePhoto, "url_resolve_failed", err)
	}
	return view, nil
}

// Update overwrites the photo's metadata and, when a new image is supplied,
// replaces both renditions under fresh keys. The record row is updated before
// the superseded blobs are removed so readers never observe dangling keys.
func (s *Service) Update(ctx context.Context, rawID string, request UpdateRequest) (PhotoView, error) {
	photoID, err := NewPhotoID(rawID)
	if err != nil {
		s.logError(opUpdatePhoto, "invalid_id", err)
		return PhotoView{}, newServiceError(opUpdatePhoto, "invalid_id", err)
	}

	fields, err := parseMetadataFields(request.TakenAt, request.Lat, request.Lon)
	if err != nil {
		s.logError(opUpdatePhoto, "invalid_taken_at", err)
		return PhotoView{}, newServiceError(opUpdatePhoto, "invalid_taken_at", err)
	}

	var record Photo
	if err := s.db.WithContext(ctx).Where("id = ?", photoID.String()).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PhotoView{}, newServiceError(opUpdatePhoto, "not_found", ErrNotFound)
		}
		s.logError(opUpdatePhoto, "record_select_failed", err, zap.String("photo_id", photoID.String()))
		return PhotoView{}, newServiceError(opUpdatePhoto, "record_select_failed", err)
	}

	updates := map[string]any{
		"caption":       request.Caption,
		"taken_at":      fields.takenAt,
		"lat":           nil,
		"lon":           nil,
		"location_name": request.LocationName,
	}
	if fields.coordinates != nil {
		updates["lat"] = fields.coordinates.Latitude
		updates["lon"] = fields.coordinates.Longitude
	}

	previousGridKey := record.GridAssetKey
	previousFeedKey := record.FeedAssetKey
	replacingImage := len(request.Image) > 0

	if replacingImage {
		source, err := rendition.Decode(bytes.NewReader(request.Image))
		if err != nil {
			s.logError(opUpdatePhoto, "decode_failed", err, zap.String("photo_id", photoID.String()))
			return PhotoView{}, newServiceError(opUpdatePhoto, "decode_failed", err)
		}

		gridBlob, feedBlob, err := generateRenditions(source)
		if err != nil {
			s.logError(opUpdatePhoto, "rendition_failed", err, zap.String("photo_id", photoID.String()))
			return PhotoView{}, newServiceError(opUpdatePhoto, "rendition_failed", err)
		}

		baseName := storage.DeriveBaseName(request.FileName, s.clock().UTC())
		gridKey, feedKey := storage.KeyPair(baseName)
		if err := s.storeRenditions(ctx, gridKey, feedKey, gridBlob, feedBlob); err != nil {
			s.logError(opUpdatePhoto, "store_write_failed", err,
				zap.String("photo_id", photoID.String()),
				zap.String("grid_key", gridKey),
				zap.String("feed_key", feedKey))
			return PhotoView{}, newServiceError(opUpdatePhoto, "store_write_failed", err)
		}

		updates["grid_asset_key"] = gridKey
		updates["feed_asset_key"] = feedKey
	}

	if err := s.db.WithContext(ctx).Model(&Photo{}).
		Where("id = ?", photoID.String()).
		Updates(updates).Error; err != nil {
		s.logError(opUpdatePhoto, "record_update_failed", err, zap.String("photo_id", photoID.String()))
		return PhotoView{}, newServiceError(opUpdatePhoto, "record_update_failed", err)
	}

	if replacingImage {
		// Superseded blobs lag behind the committed record; failures leave
		// orphans that never show up in any response.
		s.removeBlobs(ctx, opUpdatePhoto, previousGridKey, previousFeedKey)
	}

	var updated Photo
	if err := s.db.WithContext(ctx).Where("id = ?", photoID.String()).Take(&updated).Error; err != nil {
		s.logError(opUpdatePhoto, "record_select_failed", err, zap.String("photo_id", photoID.String()))
		return PhotoView{}, newServiceError(opUpdatePhoto, "record_select_failed", err)
	}

	view, err := s.resolveView(ctx, updated)
	if err != nil {
		s.logError(opUpdatePhoto, "url_resolve_failed", err, zap.String("photo_id", photoID.String()))
		return PhotoView{}, newServiceError(opUpdatePhoto, "url_resolve_failed", err)
	}
	return view, nil
}

// Delete removes the record row first, then cleans up the blobs. Deleting the
// row is the commit point; blob cleanup failures only leave orphans.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	photoID, err := NewPhotoID(rawID)
	if err != nil {
		s.logError(opDeletePhoto, "invalid_id", err)
		return newServiceError(opDeletePhoto, "invalid_id", err)
	}

	var record Photo
	if err := s.db.WithContext(ctx).Where("id = ?", photoID.String()).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeletePhoto, "not_found", ErrNotFound)
		}
		s.logError(opDeletePhoto, "record_select_failed", err, zap.String("photo_id", photoID.String()))
		return newServiceError(opDeletePhoto, "record_select_failed", err)
	}

	if err := s.db.WithContext(ctx).Delete(&Photo{}, "id = ?", photoID.String()).Error; err != nil {
		s.logError(opDeletePhoto, "record_delete_failed", err, zap.String("photo_id", photoID.String()))
		return newServiceError(opDeletePhoto, "record_delete_failed", err)
	}

	s.removeBlobs(ctx, opDeletePhoto, record.GridAssetKey, record.FeedAssetKey)
	return nil
}

// List returns every photo, newest first, with display URLs resolved. A photo
// whose URLs cannot be resolved is logged and skipped rather than failing the
// whole listing.
func (s *Service) List(ctx context.Context) ([]PhotoView, error) {
	var records []Photo
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&records).Error; err != nil {
		s.logError(opListPhotos, "query_failed", err)
		return nil, newServiceError(opListPhotos, "query_failed", err)
	}

	views := make([]PhotoView, 0, len(records))
	for _, record := range records {
		view, err := s.resolveView(ctx, record)
		if err != nil {
			s.logError(opListPhotos, "url_resolve_failed", err, zap.String("photo_id", record.ID))
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// generateRenditions produces the grid and feed JPEGs from one decode,
// concurrently since the scaling work dominates ingestion latency.
func generateRenditions(source image.Image) (gridBlob, feedBlob []byte, err error) {
	var waitGroup sync.WaitGroup
	var gridErr, feedErr error

	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		gridBlob, gridErr = rendition.Generate(source, rendition.Grid)
	}()
	go func() {
		defer waitGroup.Done()
		feedBlob, feedErr = rendition.Generate(source, rendition.Feed)
	}()
	waitGroup.Wait()

	if gridErr != nil {
		return nil, nil, fmt.Errorf("grid rendition: %w", gridErr)
	}
	if feedErr != nil {
		return nil, nil, fmt.Errorf("feed rendition: %w", feedErr)
	}
	return gridBlob, feedBlob, nil
}

// storeRenditions uploads both blobs; if either write fails the other is
// removed again so no half-written pair survives.
func (s *Service) storeRenditions(ctx context.Context, gridKey, feedKey string, gridBlob, feedBlob []byte) error {
	var waitGroup sync.WaitGroup
	var gridErr, feedErr error

	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		gridErr = s.store.Put(ctx, gridKey, gridBlob, storage.ContentTypeJPEG)
	}()
	go func() {
		defer waitGroup.Done()
		feedErr = s.store.Put(ctx, feedKey, feedBlob, storage.ContentTypeJPEG)
	}()
	waitGroup.Wait()

	if gridErr == nil && feedErr == nil {
		return nil
	}

	if removeErr := s.store.Remove(ctx, gridKey, feedKey); removeErr != nil {
		s.logger.Warn("failed to clean up partial rendition pair",
			zap.String("grid_key", gridKey),
			zap.String("feed_key", feedKey),
			zap.Error(removeErr))
	}
	if gridErr != nil {
		return fmt.Errorf("grid upload: %w", gridErr)
	}
	return fmt.Errorf("feed upload: %w", feedErr)
}

// removeBlobs is best-effort cleanup after the record store has committed.
func (s *Service) removeBlobs(ctx context.Context, operation string, keys ...string) {
	if err := s.store.Remove(ctx, keys...); err != nil {
		s.loggerOrDefault().Warn("failed to remove superseded blobs",
			zap.String("operation", operation),
			zap.Strings("keys", keys),
			zap.Error(err))
	}
}

func (s *Service) resolveView(ctx context.Context, record Photo) (PhotoView, error) {
	gridURL, err := s.store.ResolveURL(ctx, record.GridAssetKey)
	if err != nil {
		return PhotoView{}, fmt.Errorf("grid url: %w", err)
	}
	feedURL, err := s.store.ResolveURL(ctx, record.FeedAssetKey)
	if err != nil {
		return PhotoView{}, fmt.Errorf("feed url: %w", err)
	}

	return PhotoView{
		ID:           record.ID,
		Caption:      record.Caption,
		CreatedAt:    record.CreatedAt,
		TakenAt:      record.TakenAt,
		Latitude:     record.Latitude,
		Longitude:    record.Longitude,
		LocationName: record.LocationName,
		GridAssetKey: record.GridAssetKey,
		FeedAssetKey: record.FeedAssetKey,
		GridURL:      gridURL,
		FeedURL:      feedURL,
	}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("photos service error", attrs...)
}
