package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/coinearn/backend/internal/models"
)

// AuthService signs mini-app users in. The web app proves who the user is with
// the platform-signed init data; the ledger itself only ever sees the numeric
// user id extracted here.
type AuthService struct {
	events    *EventService
	redis     *redis.Client
	validator *validator.Validate
}

// WebAppLoginRequest represents the mini-app sign-in payload
// @Description Mini-app sign-in request structure
type WebAppLoginRequest struct {
	InitData string `json:"initData" validate:"required"` // Raw signed init data from the mini-app
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token   string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	UserID  int64  `json:"user_id" example:"123456789"`
	Balance int64  `json:"balance" example:"0"`
}

// initDataUser mirrors the user object embedded in the signed init data.
type initDataUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

func NewAuthService(events *EventService, redisClient *redis.Client) *AuthService {
	viper.SetDefault("telegram.auth_ttl", 24*time.Hour)
	viper.SetDefault("jwt.expiry_hours", 24)
	return &AuthService{
		events:    events,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// WebAppLogin handles mini-app sign-in
// @Summary Sign a mini-app user in
// @Description Verify signed init data, touch the user's account, and issue a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body WebAppLoginRequest true "Sign-in request"
// @Success 200 {object} AuthResponse "Sign-in successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Signature verification failed"
// @Failure 503 {object} ErrorResponse "Storage unavailable"
// @Router /auth/webapp [post]
func (s *AuthService) WebAppLogin(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req WebAppLoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, err := s.VerifyInitData(req.InitData)
	if err != nil {
		log.Printf("[AUTH] Init data verification failed from IP %s: %v", r.RemoteAddr, err)
		SendErrorResponse(w, "Signature verification failed", http.StatusUnauthorized, nil)
		return
	}

	// First contact creates the account; every later contact refreshes the
	// profile so renames take effect at the next sign-in.
	balance, _, err := s.events.RegisterTouch(r.Context(), *user)
	if err != nil {
		log.Printf("[AUTH] Registration touch failed for user %d: %v", user.UserID, err)
		SendErrorResponse(w, "Please try again", http.StatusServiceUnavailable, nil)
		return
	}

	token, err := s.generateToken(user.UserID)
	if err != nil {
		log.Printf("[AUTH] Token generation failed for user %d: %v", user.UserID, err)
		SendErrorResponse(w, "Failed to issue token", http.StatusInternalServerError, nil)
		return
	}

	s.storeSession(r.Context(), user.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token:   token,
		UserID:  user.UserID,
		Balance: balance,
	})
}

// Logout handles session invalidation
// @Summary Sign a user out
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok || userID == 0 {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if s.redis != nil {
		key := fmt.Sprintf("session:%d", userID)
		if err := s.redis.Del(r.Context(), key).Err(); err != nil {
			log.Printf("[AUTH] Failed to delete session for user %d: %v", userID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "logged out"})
}

// VerifyInitData checks the HMAC signature of mini-app init data and extracts
// the user identity. The secret key is HMAC-SHA256("WebAppData", bot token)
// per the platform's web-app validation scheme.
func (s *AuthService) VerifyInitData(initData string) (*models.UserRef, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("malformed init data: %w", err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, fmt.Errorf("init data has no hash")
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	dataCheckString := strings.Join(pairs, "\n")

	botToken := viper.GetString("telegram.bot_token")
	if botToken == "" {
		return nil, fmt.Errorf("bot token is not configured")
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	check := hmac.New(sha256.New, secret.Sum(nil))
	check.Write([]byte(dataCheckString))
	wantHash := hex.EncodeToString(check.Sum(nil))

	if !hmac.Equal([]byte(gotHash), []byte(wantHash)) {
		return nil, fmt.Errorf("hash mismatch")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid auth_date: %w", err)
	}
	if time.Since(time.Unix(authDate, 0)) > viper.GetDuration("telegram.auth_ttl") {
		return nil, fmt.Errorf("init data expired")
	}

	var u initDataUser
	if err := json.Unmarshal([]byte(values.Get("user")), &u); err != nil {
		return nil, fmt.Errorf("invalid user payload: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("user payload has no id")
	}

	return &models.UserRef{
		UserID:      u.ID,
		DisplayName: u.FirstName,
		Username:    u.Username,
	}, nil
}

func (s *AuthService) generateToken(userID int64) (string, error) {
	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(expiry).Unix(),
		"iat":     time.Now().Unix(),
	})
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func (s *AuthService) storeSession(ctx context.Context, userID int64) {
	if s.redis == nil {
		return
	}
	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
	key := fmt.Sprintf("session:%d", userID)
	if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
		log.Printf("[AUTH] Failed to store session for user %d: %v", userID, err)
	}
}
