package prodcon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	s.Require().NotNil(VerifyConfig(nil))

	config := DefaultConfig()
	s.Require().NotNil(VerifyConfig(config))

	config.Identity = "   "
	s.Require().NotNil(VerifyConfig(config))

	config.Identity = "bad\x00name"
	s.Require().NotNil(VerifyConfig(config))

	config.Identity = "demo"
	s.Require().Nil(VerifyConfig(config))

	config.Identity = ""
	config.KeyFile = "/some/key/file"
	s.Require().Nil(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestDefaultConfig() {
	config := DefaultConfig()
	s.True(config.Logging)
	s.Empty(config.Identity)
	s.Nil(config.Metrics)
}

func (s *ConfigTestSuite) TestResolveNeedsAName() {
	config := DefaultConfig()
	config.KeyFile = filepath.Join(s.T().TempDir(), "missing")
	_, err := config.resolve()
	s.Error(err)

	path := filepath.Join(s.T().TempDir(), "key")
	s.Require().NoError(os.WriteFile(path, []byte("fromfile\n"), 0o600))
	config.KeyFile = path
	id, err := config.resolve()
	s.Require().NoError(err)
	s.Equal("fromfile", id.Name)
	s.True(id.FromFile)
}

func (s *ConfigTestSuite) TestNewSessionRejectsBadConfig() {
	_, err := NewProducer(DefaultConfig())
	s.ErrorIs(err, ErrProtocolViolation)
	_, err = NewConsumer(nil)
	s.ErrorIs(err, ErrProtocolViolation)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
