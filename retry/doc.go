// Package retry 提供叶子执行器使用的指数退避重试。
//
// Do 是泛型入口，每次尝试的返回值都会交回调用方，失败时也不例外；
// 退避期间监听 ctx，取消后立即返回。
package retry
