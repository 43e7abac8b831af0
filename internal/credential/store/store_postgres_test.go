package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/canonical"
	dErrors "attest/pkg/domain-errors"
)

// fakeRow stands in for a pgx row, copying column values into Scan targets
// in order.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: got %d targets for %d columns", len(dest), len(r))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *[]byte:
			*p = r[i].([]byte)
		case *sql.NullString:
			*p = r[i].(sql.NullString)
		case *sql.NullTime:
			*p = r[i].(sql.NullTime)
		case *int64:
			*p = r[i].(int64)
		case *time.Time:
			*p = r[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

type ScanCredentialSuite struct {
	suite.Suite
}

func TestScanCredentialSuite(t *testing.T) {
	suite.Run(t, new(ScanCredentialSuite))
}

// row returns a well-formed issued credential row; edit adjusts it before use.
func (s *ScanCredentialSuite) row(edit func(fakeRow)) fakeRow {
	content, err := canonical.EncodeTyped(canonical.NewMap().Set("title", canonical.String("v0")))
	s.Require().NoError(err)
	r := fakeRow{
		"cred-1", "issued", "public", content, []byte(nil), sql.NullString{},
		sql.NullTime{Time: now, Valid: true}, sql.NullTime{}, sql.NullTime{}, "",
		sql.NullString{}, sql.NullString{}, sql.NullTime{},
		int64(1), now, now,
	}
	if edit != nil {
		edit(r)
	}
	return r
}

func (s *ScanCredentialSuite) TestWellFormedRow() {
	c, err := scanCredential(s.row(nil))
	s.Require().NoError(err)
	s.Equal("cred-1", string(c.ID))
	s.Nil(c.Anchor)
	s.Nil(c.AccessPolicy)
}

func (s *ScanCredentialSuite) TestCorruptColumnsAreInternal() {
	cases := map[string]func(fakeRow){
		"unknown status":     func(r fakeRow) { r[1] = "bogus" },
		"unknown visibility": func(r fakeRow) { r[2] = "secret" },
		"truncated content":  func(r fakeRow) { r[3] = []byte("{not json") },
		"bad anchor hash":    func(r fakeRow) { r[10] = sql.NullString{String: "zz-not-a-cid", Valid: true} },
	}
	for name, edit := range cases {
		s.Run(name, func() {
			_, err := scanCredential(s.row(edit))
			s.Require().Error(err)
			s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
			s.False(dErrors.HasCode(err, dErrors.CodeValidation))
			s.False(dErrors.IsRetriable(err))
			s.Contains(errors.Unwrap(err).Error(), "credential cred-1")
		})
	}
}

func (s *ScanCredentialSuite) TestScanFailurePassesThrough() {
	_, err := scanCredential(fakeRow{"too", "short"})
	s.Require().Error(err)
	s.False(dErrors.HasCode(err, dErrors.CodeInternal))
}
