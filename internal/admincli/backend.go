package admincli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/netx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/avatars"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessionstore"
)

// Backend is what the commands operate on.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateUser(ctx context.Context, name, email, password string, role models.Role) (*models.User, error)
	SetRole(ctx context.Context, email string, role models.Role) (*models.User, error)
	SetAvatar(ctx context.Context, email, path string) (*models.User, error)
	Close() error
}

// Opener connects a Backend on first use, so that --help works without a
// database.
type Opener func(ctx context.Context) (Backend, error)

type serverBackend struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	auth    *services.AuthService
	avatars *avatars.Service
	client  *http.Client
}

// ServerOpener opens the database named in cfg and builds the auth service
// on top of it. Avatar uploads are available when an S3 bucket is set.
func ServerOpener(cfg *config.Config, l logging.Logger) Opener {
	return func(ctx context.Context) (Backend, error) {
		db, err := dbx.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}

		b := &serverBackend{db: db, rm: repomanager.NewPostgresRepositoryManager(), client: http.DefaultClient}
		b.auth = services.NewAuthService(db, b.rm, cfg, sessionstore.New(db, b.rm, cfg.SessionTTL), notify.NewLogNotifier(l),
			services.WithLogger(l))

		if cfg.S3Bucket != "" {
			b.avatars, err = avatars.New(ctx, avatars.Config{
				AccessKey:    cfg.S3RootUser,
				SecretKey:    cfg.S3RootPassword,
				Bucket:       cfg.S3Bucket,
				Region:       cfg.S3Region,
				BaseEndpoint: cfg.S3BaseEndpoint,
			})
			if err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return b, nil
	}
}

func (b *serverBackend) Migrate(ctx context.Context) error {
	return b.rm.RunMigrations(ctx, b.db)
}

func (b *serverBackend) CreateUser(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	return b.auth.ProvisionUser(ctx, name, email, password, role)
}

func (b *serverBackend) SetRole(ctx context.Context, email string, role models.Role) (*models.User, error) {
	return b.auth.SetRoleByEmail(ctx, email, role)
}

// SetAvatar uploads the image at path through a presigned URL and stores
// its public URL on the user.
func (b *serverBackend) SetAvatar(ctx context.Context, email, path string) (*models.User, error) {
	if b.avatars == nil {
		return nil, fmt.Errorf("avatar storage is not configured")
	}

	u, err := b.auth.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	contentType := http.DetectContentType(data)

	up, err := b.avatars.PresignUpload(ctx, u.ID, contentType)
	if err != nil {
		return nil, err
	}
	if err := netx.PutPresigned(ctx, b.client, up.UploadURL, contentType, data); err != nil {
		return nil, err
	}
	return b.auth.SetUserImage(ctx, u, up.PublicURL)
}

func (b *serverBackend) Close() error {
	return b.db.Close()
}
