package kernel

import (
	"bufio"
	"os"
)

// LineScanner 对一个打开的内核文件做惰性的逐行读取。
// 有限、不可重放，用完必须 Close
type LineScanner struct {
	f  *os.File
	sc *bufio.Scanner
}

func openLines(path string) (*LineScanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &LineScanner{
		f:  f,
		sc: bufio.NewScanner(f),
	}, nil
}

// Scan 前进到下一行，没有更多行时返回 false
func (l *LineScanner) Scan() bool {
	return l.sc.Scan()
}

// Text 返回当前行的内容（不含换行符）
func (l *LineScanner) Text() string {
	return l.sc.Text()
}

// Err 返回扫描过程中遇到的第一个非 EOF 错误
func (l *LineScanner) Err() error {
	return l.sc.Err()
}

// Close 释放底层文件
func (l *LineScanner) Close() error {
	return l.f.Close()
}
