package couchbase

import (
	"fmt"
	"strings"
	"time"

	"shaneshark.com/portfolio/internal/store"
)

// document type discriminators
const (
	docTypeQa   = "qa"
	docTypeUser = "user"
	docTypeCode = "code"
)

func qaKey(id store.ID) string      { return "qa::" + id.String() }
func userKey(id store.ID) string    { return "user::" + id.String() }
func codeKey(id store.ID) string    { return "code::" + id.String() }
func emailKey(email string) string { return "user_email::" + strings.ToLower(email) }

// Times are stored as unix milliseconds so N1QL can order and compare them.
type qaDocument struct {
	Type       string   `json:"type"`
	ID         store.ID `json:"id"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Tag        string   `json:"tag"`
	IsHot      int      `json:"isHot"`
	ViewCount  int64    `json:"viewCount"`
	CreateTime int64    `json:"createTime"`
	UpdateTime int64    `json:"updateTime"`
}

func newQaDocument(qa *store.QaInfo) qaDocument {
	return qaDocument{
		Type:       docTypeQa,
		ID:         qa.ID,
		Question:   qa.Question,
		Answer:     qa.Answer,
		Tag:        qa.Tag,
		IsHot:      qa.IsHot,
		ViewCount:  qa.ViewCount,
		CreateTime: qa.CreateTime.UnixMilli(),
		UpdateTime: qa.UpdateTime.UnixMilli(),
	}
}

func (d qaDocument) toQa() store.QaInfo {
	return store.QaInfo{
		ID:         d.ID,
		Question:   d.Question,
		Answer:     d.Answer,
		Tag:        d.Tag,
		IsHot:      d.IsHot,
		ViewCount:  d.ViewCount,
		CreateTime: time.UnixMilli(d.CreateTime),
		UpdateTime: time.UnixMilli(d.UpdateTime),
	}
}

type userDocument struct {
	Type         string   `json:"type"`
	ID           store.ID `json:"id"`
	Account      string   `json:"account"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	PasswordHash string   `json:"passwordHash"`
	Role         string   `json:"role"`
	CreateTime   int64    `json:"createTime"`
	UpdateTime   int64    `json:"updateTime"`
}

func newUserDocument(u *store.User) userDocument {
	return userDocument{
		Type:         docTypeUser,
		ID:           u.ID,
		Account:      u.Account,
		Email:        u.Email,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CreateTime:   u.CreateTime.UnixMilli(),
		UpdateTime:   u.UpdateTime.UnixMilli(),
	}
}

func (d userDocument) toUser() store.User {
	return store.User{
		ID:           d.ID,
		Account:      d.Account,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		CreateTime:   time.UnixMilli(d.CreateTime),
		UpdateTime:   time.UnixMilli(d.UpdateTime),
	}
}

type emailLookup struct {
	UserID store.ID `json:"userId"`
}

type codeDocument struct {
	Type       string   `json:"type"`
	ID         store.ID `json:"id"`
	Account    string   `json:"account"`
	Code       string   `json:"code"`
	CodeType   string   `json:"codeType"`
	Status     int      `json:"status"`
	ExpireTime int64    `json:"expireTime"`
	CreateTime int64    `json:"createTime"`
}

func newCodeDocument(c *store.VerificationCode) codeDocument {
	return codeDocument{
		Type:       docTypeCode,
		ID:         c.ID,
		Account:    c.Account,
		Code:       c.Code,
		CodeType:   c.Type,
		Status:     c.Status,
		ExpireTime: c.ExpireTime.UnixMilli(),
		CreateTime: c.CreateTime.UnixMilli(),
	}
}

func indexStatements(bucket string) []string {
	return []string{
		fmt.Sprintf("CREATE PRIMARY INDEX IF NOT EXISTS ON `%s`", bucket),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_type_createTime ON `%s`(`type`, createTime DESC)", bucket),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_qa_tag ON `%s`(tag, isHot) WHERE `type` = \"qa\"", bucket),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_code_account ON `%s`(account, code, status) WHERE `type` = \"code\"", bucket),
	}
}

// qaFilter renders the WHERE clause shared by the count and list statements
func qaFilter(q store.QaQuery) (string, []interface{}) {
	clauses := []string{"d.`type` = $1"}
	args := []interface{}{docTypeQa}

	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Tag != "" {
		clauses = append(clauses, "d.tag = "+next(q.Tag))
	}
	if q.IsHot != nil {
		clauses = append(clauses, "d.isHot = "+next(*q.IsHot))
	}
	if q.Keyword != "" {
		clauses = append(clauses, "CONTAINS(LOWER(d.question), LOWER("+next(q.Keyword)+"))")
	}
	return strings.Join(clauses, " AND "), args
}

func buildCountQuery(bucket string, q store.QaQuery) (string, []interface{}) {
	where, args := qaFilter(q)
	return fmt.Sprintf("SELECT COUNT(*) AS count FROM `%s` AS d WHERE %s", bucket, where), args
}

func buildListQuery(bucket string, q store.QaQuery) (string, []interface{}) {
	where, args := qaFilter(q)
	args = append(args, q.PageSize, q.Offset())
	n := len(args)
	return fmt.Sprintf("SELECT d.* FROM `%s` AS d WHERE %s ORDER BY d.createTime DESC LIMIT $%d OFFSET $%d",
		bucket, where, n-1, n), args
}
