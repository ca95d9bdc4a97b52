package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

// QRService renders the bot deep link as a QR image so users can share the
// earn app. Rendered images are cached briefly; the encoded link carries the
// referring user id.
type QRService struct {
	redis *redis.Client
}

func NewQRService(redisClient *redis.Client) *QRService {
	return &QRService{redis: redisClient}
}

func (s *QRService) InviteQR(ctx context.Context, userID int64) (string, string, error) {
	botUsername := viper.GetString("telegram.bot_username")
	if botUsername == "" {
		return "", "", fmt.Errorf("bot username is not configured")
	}

	link := fmt.Sprintf("https://t.me/%s?start=ref_%d", botUsername, userID)

	if s.redis != nil {
		key := fmt.Sprintf("qr:invite:%d", userID)
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			return link, cached, nil
		}
	}

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		key := fmt.Sprintf("qr:invite:%d", userID)
		if err := s.redis.Set(ctx, key, qrImage, 5*time.Minute).Err(); err != nil {
			return link, qrImage, nil
		}
	}

	return link, qrImage, nil
}
