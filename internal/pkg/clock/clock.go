// Package clock 统一提供固定时区下的“当前时间”和“下一个午夜”，
// 所有按天计算的额度和到期时间都从这里取时间，避免与服务器本地时区混用。
package clock

import (
	"sync"
	"time"
)

// DateLayout 民用日期的存储格式
const DateLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Zoned 基于系统时间的实现
type Zoned struct {
	loc *time.Location
}

// New 按 IANA 时区名创建时钟，名称为空时使用 UTC
func New(timezone string) (*Zoned, error) {
	if timezone == "" {
		return &Zoned{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Zoned{loc: loc}, nil
}

func (c *Zoned) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Zoned) Location() *time.Location {
	return c.loc
}

// Today 返回时钟所在时区的民用日期
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

// DateOf 把任意时刻换算为时钟时区下的民用日期
func DateOf(c Clock, t time.Time) string {
	return t.In(c.Location()).Format(DateLayout)
}

// NextMidnight 返回下一个民用日的零点
func NextMidnight(c Clock) time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, c.Location())
}

// Fake 测试用时钟，可手动推进
type Fake struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now, loc: now.Location()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Location() *time.Location {
	return f.loc
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.In(f.loc)
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
