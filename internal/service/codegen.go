package service

import (
	"crypto/rand"
	"io"
	"math/big"

	"smscode/backend/internal/domain"
)

// Generator 验证码生成器
type Generator interface {
	Generate() string
}

// CodeGenerator 使用密码学安全随机源生成 6 位数字验证码
type CodeGenerator struct {
	reader io.Reader
}

// NewCodeGenerator 创建验证码生成器
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{reader: rand.Reader}
}

var ten = big.NewInt(10)

// Generate 每一位独立均匀取值 0-9。随机源不可用属于主机故障，直接 panic。
func (g *CodeGenerator) Generate() string {
	buf := make([]byte, domain.CodeLength)
	for i := range buf {
		n, err := rand.Int(g.reader, ten)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf)
}
