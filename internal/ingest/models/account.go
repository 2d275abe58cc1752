package models

import (
	"github.com/go-playground/validator/v10"
)

var accountValidator = validator.New()

// Account 一个平台账号：凭证 + 目标群组列表
// 启动时加载一次，之后不可变
type Account struct {
	Name     string     `validate:"required"`
	AppID    int        `validate:"required,gt=0"`
	AppHash  string     `validate:"required"`
	Phone    string     `validate:"required"`
	Password string     // 两步验证密码（可选）
	Groups   []GroupRef `validate:"-"`
}

// Validate 校验账号凭证是否完整
func (a *Account) Validate() error {
	return accountValidator.Struct(a)
}

// Complete 凭证是否完整（app id、app hash、手机号）
func (a *Account) Complete() bool {
	return a.Validate() == nil
}
