package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ID is a snowflake identifier. It travels as a JSON string because
// browsers lose precision above 2^53.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", data, err)
	}
	*id = ID(v)
	return nil
}

// ParseID parses a path or query parameter
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(v), nil
}

// QaInfo is one knowledge-base entry. Answer holds a Lake document verbatim.
type QaInfo struct {
	ID         ID        `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Tag        string    `json:"tag"`
	IsHot      int       `json:"isHot"`
	ViewCount  int64     `json:"viewCount"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

// QaQuery filters a QA listing. Zero values mean "no filter".
type QaQuery struct {
	Current  int64  `json:"current"`
	PageSize int64  `json:"pageSize"`
	Tag      string `json:"tag,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
	IsHot    *int   `json:"isHot,omitempty"`
}

// Offset returns the row offset of the requested page
func (q QaQuery) Offset() int64 {
	if q.Current < 1 || q.PageSize < 1 {
		return 0
	}
	if q.Current-1 > math.MaxInt64/q.PageSize {
		return math.MaxInt64 / q.PageSize * q.PageSize
	}
	return (q.Current - 1) * q.PageSize
}

// Page is one page of a listing
type Page[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Current int64 `json:"current"`
	Size    int64 `json:"size"`
	Pages   int64 `json:"pages"`
}

// NewPage fills in the page count and guarantees a non-nil Records slice
func NewPage[T any](records []T, total, current, size int64) Page[T] {
	if records == nil {
		records = []T{}
	}
	var pages int64
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{
		Records: records,
		Total:   total,
		Current: current,
		Size:    size,
		Pages:   pages,
	}
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account
type User struct {
	ID           ID        `json:"id"`
	Account      string    `json:"account"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreateTime   time.Time `json:"createTime"`
	UpdateTime   time.Time `json:"updateTime"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Verification code channels
const (
	CodeTypePhone = "PHONE"
	CodeTypeEmail = "EMAIL"
)

// Verification code states
const (
	CodeUnused = 0
	CodeUsed   = 1
)

// VerificationCode is a one-time code sent by SMS or e-mail
type VerificationCode struct {
	ID         ID        `json:"id"`
	Account    string    `json:"account"`
	Code       string    `json:"code"`
	Type       string    `json:"type"`
	Status     int       `json:"status"`
	ExpireTime time.Time `json:"expireTime"`
	CreateTime time.Time `json:"createTime"`
}
