package models

type AdminConfig struct {
	AdminIDs []int64
}
