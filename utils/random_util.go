package utils

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GetUUID 生成会话id
func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		logrus.Errorf("[GetUUID] fail, err = %v", err)
		return uuid.NewString()
	}
	return u1.String()
}
