// Package avatars hands out presigned S3 upload URLs for profile images.
package avatars

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// UploadTTL is how long a presigned upload URL stays valid.
const UploadTTL = 15 * time.Minute

type Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// Upload is what a client needs to upload an avatar and then reference it
// from its profile.
type Upload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest mirrors the fields of the SDK's presigned request that
// the service uses.
type PresignedRequest struct {
	URL string
}

type sdkPresigner struct {
	client *s3.PresignClient
}

func (p sdkPresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.client.PresignPutObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

type Service struct {
	cfg       Config
	presigner presigner
	now       func() time.Time
}

// New builds an S3 client against cfg (MinIO or AWS) with static
// credentials.
func New(ctx context.Context, cfg Config) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &Service{cfg: cfg, presigner: sdkPresigner{client: s3.NewPresignClient(client)}, now: time.Now}, nil
}

// ObjectKey returns a fresh key under the user's prefix.
func ObjectKey(userID string) string {
	return fmt.Sprintf("avatars/%s/%s", userID, uuid.New())
}

// PresignUpload issues a presigned PUT URL for a new avatar of userID.
func (s *Service) PresignUpload(ctx context.Context, userID, contentType string) (*Upload, error) {
	key := ObjectKey(userID)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(UploadTTL))
	if err != nil {
		return nil, fmt.Errorf("presign avatar upload: %w", err)
	}

	return &Upload{
		Key:       key,
		UploadURL: req.URL,
		PublicURL: s.PublicURL(key),
		ExpiresAt: s.now().Add(UploadTTL),
	}, nil
}

// PublicURL is the path-style URL of key in the configured bucket.
func (s *Service) PublicURL(key string) string {
	base := strings.TrimRight(s.cfg.BaseEndpoint, "/")
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", s.cfg.Region)
	}
	return base + "/" + url.PathEscape(s.cfg.Bucket) + "/" + key
}

// Owns reports whether imageURL points at an object uploaded for userID.
func (s *Service) Owns(userID, imageURL string) bool {
	return strings.HasPrefix(imageURL, s.PublicURL("avatars/"+userID+"/"))
}

// Allowed reports whether userID may set imageURL as their avatar: any
// absolute http(s) URL outside the bucket, or one of their own uploads.
func (s *Service) Allowed(userID, imageURL string) bool {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if strings.HasPrefix(imageURL, s.PublicURL("avatars/")) {
		return s.Owns(userID, imageURL)
	}
	return true
}
