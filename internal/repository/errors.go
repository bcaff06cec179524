package repository

import "errors"

var ErrNotFound = errors.New("not found")

// 一意制約違反（同じ注文に2つ目のpaymentなど）
var ErrConflict = errors.New("conflict")
