package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/store"
)

const (
	codeDigits   = 6
	codeValidity = 10 * time.Minute
	sendInterval = 60 * time.Second
)

var (
	// ErrCodeInvalid covers wrong, expired and already used codes
	ErrCodeInvalid = apperr.Params("code invalid or expired")
	// ErrTooManyRequests is returned when an account or client is throttled
	ErrTooManyRequests = apperr.New(apperr.TooManyError, "too many requests, try again later")
)

// CodeService issues and checks one-time verification codes
type CodeService struct {
	store   store.CodeStore
	mailer  Mailer
	sms     SMSSender
	limiter *KeyedLimiter
	now     func() time.Time
}

func NewCodeService(s store.CodeStore, mailer Mailer, sms SMSSender) *CodeService {
	return &CodeService{
		store:   s,
		mailer:  mailer,
		sms:     sms,
		limiter: NewKeyedLimiter(sendInterval, 1),
		now:     time.Now,
	}
}

// Send generates a code for account, stores it and dispatches it by SMS or e-mail
func (c *CodeService) Send(ctx context.Context, account string) error {
	account = strings.TrimSpace(account)
	codeType, err := AccountType(account)
	if err != nil {
		return err
	}
	if !c.limiter.Allow(account) {
		log.Warn().Str("account", account).Msg("Verification code send throttled")
		return ErrTooManyRequests
	}

	code, err := randomDigits(codeDigits)
	if err != nil {
		return err
	}

	now := c.now()
	vc := &store.VerificationCode{
		Account:    account,
		Code:       code,
		Type:       codeType,
		Status:     store.CodeUnused,
		ExpireTime: now.Add(codeValidity),
		CreateTime: now,
	}
	if err := c.store.SaveVerificationCode(ctx, vc); err != nil {
		return fmt.Errorf("save verification code: %w", err)
	}

	if codeType == store.CodeTypePhone {
		err = c.sms.SendCode(ctx, account, code)
	} else {
		err = c.mailer.SendCode(ctx, account, code)
	}
	if err != nil {
		return apperr.New(apperr.OperationError, "failed to send verification code")
	}

	log.Info().Str("account", account).Str("type", codeType).Msg("Verification code sent")
	return nil
}

// Validate consumes the code, any failure is ErrCodeInvalid
func (c *CodeService) Validate(ctx context.Context, account, code string) error {
	err := c.store.ConsumeVerificationCode(ctx, strings.TrimSpace(account), strings.TrimSpace(code), c.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrCodeInvalid
	}
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	return nil
}

// randomDigits returns n uniformly random decimal digits
func randomDigits(n int) (string, error) {
	var sb strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}
