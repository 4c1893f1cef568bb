package consts

// TransferHookExecuteDiscriminator 是 SPL transfer-hook 接口 Execute 指令的
// 8 字节判别符（sha256("spl-transfer-hook-interface:execute") 前 8 字节）。
// 任何实现该接口的 hook 程序，其 Execute 指令数据均以此前缀开头。
var TransferHookExecuteDiscriminator = [8]byte{105, 37, 101, 197, 75, 251, 102, 26}
