// Package tlsutil 为图像服务商适配器提供出站 HTTP 客户端：
// TLS 1.2+、仅 AEAD 密码套件、按主机复用连接，并拒绝 https → http 的重定向降级。
package tlsutil
