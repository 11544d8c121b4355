package ssh

import (
	"time"

	"golang.org/x/crypto/ssh"
)

// StartKeepAlive 定期发送 keepalive@openssh.com 请求.
// 请求失败时关闭连接, 正在使用的 Session 会随之收到错误; fallback 可为 nil.
func StartKeepAlive(client *ssh.Client, interval time.Duration, fallback func(err error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				client.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
}
