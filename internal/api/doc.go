// Package api 暴露面向渲染层的 REST 接口：会话、向导操作、提交任务查询与指标。
package api
