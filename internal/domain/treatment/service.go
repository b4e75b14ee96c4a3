package treatment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elanza/clinic/internal/domain/catalog"
	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/blobstore"
	"github.com/elanza/clinic/internal/platform/db"
	"github.com/elanza/clinic/internal/platform/events"
	"github.com/elanza/clinic/internal/platform/sanitize"
)

type ServiceLookup interface {
	GetByID(ctx context.Context, id string) (*catalog.Service, error)
}

// Service sells packages and records the sessions delivered against them.
type Service struct {
	packages PackageRepository
	history  HistoryRepository
	services ServiceLookup
	blobs    blobstore.Store
	tx       db.TxRunner
	pub      events.Publisher
	clean    *sanitize.Sanitizer
	logger   zerolog.Logger
	loc      *time.Location
}

func NewService(packages PackageRepository, history HistoryRepository, services ServiceLookup,
	blobs blobstore.Store, tx db.TxRunner, pub events.Publisher, logger zerolog.Logger, loc *time.Location) *Service {
	return &Service{
		packages: packages,
		history:  history,
		services: services,
		blobs:    blobs,
		tx:       tx,
		pub:      pub,
		clean:    sanitize.New(),
		logger:   logger.With().Str("component", "treatment").Logger(),
		loc:      loc,
	}
}

// Sell creates one package per sale item for userID. Only a Super
// Administrador may sell.
func (s *Service) Sell(ctx context.Context, actor *auth.Actor, userID string, req SaleRequest) ([]*Package, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if actor.Role != auth.RoleSuperAdmin {
		return nil, apperr.New(apperr.PermissionDenied, "only a Super Administrador can sell packages")
	}
	if userID == "" || len(req.Items) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "a client and at least one service are required")
	}
	if req.Method != PaymentCash && req.Method != PaymentCard {
		return nil, apperr.Newf(apperr.InvalidArgument, "unknown payment method %q", req.Method)
	}
	cardType := strings.TrimSpace(req.CardType)
	if req.Method == PaymentCard && cardType == "" {
		return nil, apperr.New(apperr.InvalidArgument, "cardType is required for card payments")
	}
	if req.Method == PaymentCash {
		cardType = ""
	}
	fields := map[string]interface{}{"user_id": userID, "sold_by": actor.UserID}

	for _, it := range req.Items {
		if it.Sessions < 1 {
			return nil, apperr.Newf(apperr.InvalidArgument, "%s: sessions must be at least 1", it.ServiceID)
		}
		if it.Amount.IsNegative() {
			return nil, apperr.Newf(apperr.InvalidArgument, "%s: amount cannot be negative", it.ServiceID)
		}
		if _, err := s.services.GetByID(ctx, it.ServiceID); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return nil, apperr.Newf(apperr.NotFound, "service %q not found", it.ServiceID)
			}
			return nil, apperr.Surface(s.logger, "package.sell", err, fields)
		}
	}

	var sold []*Package
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, it := range req.Items {
			p := &Package{
				ID:                uuid.New(),
				UserID:            userID,
				ServiceID:         it.ServiceID,
				TotalAppointments: it.Sessions,
				Payment: Payment{
					Amount:       it.Amount.Round(2),
					Method:       req.Method,
					CardType:     cardType,
					ReceiptFolio: strings.TrimSpace(req.ReceiptFolio),
				},
				PurchasedByAdmin: actor.UserID,
			}
			if err := s.packages.Create(ctx, p); err != nil {
				return err
			}
			sold = append(sold, p)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Surface(s.logger, "package.sell", err, fields)
	}
	s.logger.Info().Str("user_id", userID).Str("sold_by", actor.UserID).Int("packages", len(sold)).Msg("packages sold")
	return sold, nil
}

func (s *Service) ListPackages(ctx context.Context, actor *auth.Actor, userID string) ([]*Package, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if !actor.CanAccess(userID) {
		return nil, apperr.New(apperr.PermissionDenied, "you can only view your own packages")
	}
	items, err := s.packages.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Surface(s.logger, "package.list", err, map[string]interface{}{"user_id": userID})
	}
	if items == nil {
		items = []*Package{}
	}
	return items, nil
}

// accessiblePackage loads the package if actor owns it or is privileged.
func (s *Service) accessiblePackage(ctx context.Context, actor *auth.Actor, op, rawID string) (*Package, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "package not found")
	}
	p, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Surface(s.logger, op, err, map[string]interface{}{"package_id": rawID})
	}
	if !actor.CanAccess(p.UserID) {
		return nil, apperr.New(apperr.PermissionDenied, "you do not have access to this package")
	}
	return p, nil
}

// AppendHistory records a delivered session. It consumes one session of the
// package and then publishes history.appended so retention runs.
func (s *Service) AppendHistory(ctx context.Context, actor *auth.Actor, packageID string, in HistoryInput) (*HistoryEntry, error) {
	if actor != nil && !actor.Privileged() {
		return nil, apperr.New(apperr.PermissionDenied, "only staff can write history")
	}
	p, err := s.accessiblePackage(ctx, actor, "history.append", packageID)
	if err != nil {
		return nil, err
	}
	doctor := s.clean.Text(in.DoctorName)
	if doctor == "" {
		return nil, apperr.New(apperr.InvalidArgument, "doctorName is required")
	}
	e := &HistoryEntry{
		ID:         uuid.New(),
		PackageID:  p.ID,
		DoctorName: doctor,
		Notes:      s.clean.Notes(in.Notes),
		Photos:     append([]string{}, in.Photos...),
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.packages.ConsumeSession(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("consume session: %w", err)
		}
		if !ok {
			return apperr.New(apperr.FailedPrecondition, "the package has no sessions left")
		}
		return s.history.Create(ctx, e)
	})
	if err != nil {
		return nil, apperr.Surface(s.logger, "history.append", err, map[string]interface{}{"package_id": packageID})
	}

	msg := HistoryAppended{PackageID: p.ID.String(), EntryID: e.ID.String(), PhotoCount: len(e.Photos)}
	if err := s.pub.Publish(ctx, events.TopicHistoryAppended, msg.PackageID, msg); err != nil {
		s.logger.Error().Err(err).Str("package_id", msg.PackageID).Msg("publish history.appended failed")
	}
	s.logger.Info().
		Str("package_id", msg.PackageID).
		Str("entry_id", msg.EntryID).
		Int("photos", msg.PhotoCount).
		Msg("history entry appended")
	return e, nil
}

// ListHistory returns the package history, newest first.
func (s *Service) ListHistory(ctx context.Context, actor *auth.Actor, packageID string) ([]*HistoryEntry, error) {
	p, err := s.accessiblePackage(ctx, actor, "history.list", packageID)
	if err != nil {
		return nil, err
	}
	items, err := s.history.ListByPackage(ctx, p.ID)
	if err != nil {
		return nil, apperr.Surface(s.logger, "history.list", err, map[string]interface{}{"package_id": packageID})
	}
	if items == nil {
		items = []*HistoryEntry{}
	}
	return items, nil
}

var photoExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// UploadPhoto stores an image for a future history entry of the package and
// returns its download URL.
func (s *Service) UploadPhoto(ctx context.Context, actor *auth.Actor, packageID, contentType string, content io.Reader) (string, error) {
	if actor != nil && !actor.Privileged() {
		return "", apperr.New(apperr.PermissionDenied, "only staff can upload history photos")
	}
	p, err := s.accessiblePackage(ctx, actor, "history.photo", packageID)
	if err != nil {
		return "", err
	}
	objectPath := path.Join("history", p.ID.String(), uuid.NewString()+photoExt[contentType])
	url, err := s.blobs.Put(ctx, objectPath, contentType, content)
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return "", apperr.Newf(apperr.InvalidArgument, "photos are limited to %d MB", blobstore.MaxFileSize>>20)
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return "", apperr.Newf(apperr.InvalidArgument, "unsupported image type %q", contentType)
	case err != nil:
		return "", apperr.Surface(s.logger, "history.photo", err, map[string]interface{}{"package_id": packageID})
	}
	return url, nil
}

// Receipt renders the sale receipt of a package as PDF.
func (s *Service) Receipt(ctx context.Context, actor *auth.Actor, packageID string) ([]byte, error) {
	p, err := s.accessiblePackage(ctx, actor, "package.receipt", packageID)
	if err != nil {
		return nil, err
	}
	serviceName := p.ServiceID
	if svc, err := s.services.GetByID(ctx, p.ServiceID); err == nil {
		serviceName = svc.Name
	}
	out, err := renderReceipt(p, serviceName, s.loc)
	if err != nil {
		return nil, apperr.Surface(s.logger, "package.receipt", err, map[string]interface{}{"package_id": packageID})
	}
	return out, nil
}

// ExportSales renders the packages sold between the local dates from and to
// (both inclusive, "2006-01-02") as a spreadsheet.
func (s *Service) ExportSales(ctx context.Context, from, to string) ([]byte, error) {
	start, err := time.ParseInLocation("2006-01-02", from, s.loc)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidArgument, "from %q must be YYYY-MM-DD", from)
	}
	end, err := time.ParseInLocation("2006-01-02", to, s.loc)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidArgument, "to %q must be YYYY-MM-DD", to)
	}
	if end.Before(start) {
		return nil, apperr.New(apperr.InvalidArgument, "to must not be before from")
	}
	fields := map[string]interface{}{"from": from, "to": to}
	sales, err := s.packages.ListSales(ctx, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperr.Surface(s.logger, "package.export", err, fields)
	}
	out, err := renderSales(sales, s.loc)
	if err != nil {
		return nil, apperr.Surface(s.logger, "package.export", err, fields)
	}
	return out, nil
}
