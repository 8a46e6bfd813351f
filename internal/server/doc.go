/*
包 server 管理 bstflow HTTP 服务的生命周期。

Manager 包装 net/http.Server 并统计在途请求。Shutdown 在排空时限内等待
在途分析完成；超时后取消所有请求 ctx，引擎据此返回部分报告后连接被关闭。
*/
package server
