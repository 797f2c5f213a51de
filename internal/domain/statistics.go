package domain

// Statistics 访问码与邮箱的时点统计。
//
// ActiveCodes = TotalCodes - UsedCodes - ExpiredCodes，其中 ExpiredCodes 只统计未使用的过期码。
type Statistics struct {
	TotalCodes     int64 `json:"total_codes"`
	ActiveCodes    int64 `json:"active_codes"`
	UsedCodes      int64 `json:"used_codes"`
	ExpiredCodes   int64 `json:"expired_codes"`
	TotalMailboxes int64 `json:"total_mailboxes"`
	TotalMessages  int64 `json:"total_messages"`
}
